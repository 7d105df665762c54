package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arnatech/noc/pkg/nocsdk"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in, register and manage the local session",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Sign in with email and password and store the session locally.

If the account has MFA enabled, pass --otp with the current authenticator
code, or --totp-secret to generate it.`,
	RunE: runAuthLogin,
}

var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE:  runAuthRegister,
}

var authVerifyCmd = &cobra.Command{
	Use:   "verify-email",
	Short: "Verify an email address with the emailed OTP",
	RunE:  runAuthVerify,
}

var authResendCmd = &cobra.Command{
	Use:   "resend-otp",
	Short: "Send a new email verification OTP",
	RunE:  runAuthResend,
}

var authGoogleCmd = &cobra.Command{
	Use:   "google-login",
	Short: "Sign in with a Google ID token credential",
	RunE:  runAuthGoogle,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authRegisterCmd)
	authCmd.AddCommand(authVerifyCmd)
	authCmd.AddCommand(authResendCmd)
	authCmd.AddCommand(authGoogleCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)

	for _, c := range []*cobra.Command{authLoginCmd, authRegisterCmd, authVerifyCmd, authResendCmd} {
		c.Flags().StringP("email", "e", "", "Account email")
		_ = c.MarkFlagRequired("email")
	}
	for _, c := range []*cobra.Command{authLoginCmd, authRegisterCmd} {
		c.Flags().StringP("password", "p", "", "Account password (prompted on stdin when omitted)")
	}

	authLoginCmd.Flags().String("otp", "", "Authenticator code for MFA")
	authLoginCmd.Flags().String("totp-secret", "", "Authenticator secret used to generate the MFA code")

	authRegisterCmd.Flags().String("confirm", "", "Password confirmation (defaults to --password)")

	authVerifyCmd.Flags().String("otp", "", "OTP from the verification email")
	_ = authVerifyCmd.MarkFlagRequired("otp")

	authGoogleCmd.Flags().String("credential", "", "Google ID token")
	_ = authGoogleCmd.MarkFlagRequired("credential")
}

func runAuthLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	email, _ := cmd.Flags().GetString("email")
	otp, _ := cmd.Flags().GetString("otp")
	secret, _ := cmd.Flags().GetString("totp-secret")

	password, err := passwordFlag(cmd)
	if err != nil {
		return err
	}

	req := nocsdk.LoginRequest{Email: email, Password: password, OTP: otp}
	_, err = application.Auth.Login(ctx, req)

	var mfa *nocsdk.MFARequiredError
	if errors.As(err, &mfa) && secret != "" {
		code, cerr := nocsdk.TOTPCode(secret, time.Now())
		if cerr != nil {
			return cerr
		}
		req.OTP = code
		_, err = application.Auth.Login(ctx, req)
	}
	if errors.As(err, &mfa) {
		return fmt.Errorf("%w (retry with --otp or --totp-secret)", mfa)
	}
	if err != nil {
		return err
	}

	success(cmd.OutOrStdout(), "Login successful!")
	return nil
}

func runAuthRegister(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	confirm, _ := cmd.Flags().GetString("confirm")

	password, err := passwordFlag(cmd)
	if err != nil {
		return err
	}
	if confirm == "" {
		confirm = password
	}

	resp, err := application.Auth.Register(cmd.Context(), nocsdk.RegisterRequest{
		Email:    email,
		Password: password,
		Confirm:  confirm,
	})
	if err != nil {
		return err
	}

	success(cmd.OutOrStdout(), messageOr(resp, "Registration successful."))
	fmt.Fprintf(cmd.OutOrStdout(), "Verify your email with: noc auth verify-email --email %s --otp <code>\n", email)
	return nil
}

func runAuthVerify(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	otp, _ := cmd.Flags().GetString("otp")

	resp, err := application.Auth.VerifyEmail(cmd.Context(), email, otp)
	if err != nil {
		return err
	}

	success(cmd.OutOrStdout(), messageOr(resp, "Email verified successfully! You can now sign in."))
	return nil
}

func runAuthResend(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")

	resp, err := application.Auth.ResendEmailOTP(cmd.Context(), email)
	if err != nil {
		return err
	}

	success(cmd.OutOrStdout(), messageOr(resp, "OTP has been resent to your email."))
	return nil
}

func runAuthGoogle(cmd *cobra.Command, _ []string) error {
	credential, _ := cmd.Flags().GetString("credential")

	if _, err := application.Auth.GoogleLogin(cmd.Context(), credential); err != nil {
		return err
	}

	success(cmd.OutOrStdout(), "Login successful!")
	return nil
}

func runAuthLogout(cmd *cobra.Command, _ []string) error {
	if err := application.Auth.Logout(cmd.Context()); err != nil {
		return err
	}

	success(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	info, err := application.Status(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !info.Authenticated() {
		fmt.Fprintln(out, "Not signed in.")
		return nil
	}

	label := color.New(color.Bold)
	_, _ = label.Fprint(out, "Signed in")
	if info.Subject != "" {
		fmt.Fprintf(out, " as %s", info.Subject)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "  access token:  %s\n", presence(info.HasAccess))
	fmt.Fprintf(out, "  refresh token: %s\n", presence(info.HasRefresh))
	if !info.ExpiresAt.IsZero() {
		state := "valid"
		if info.Expired {
			state = "expired, refreshed on next request"
		}
		fmt.Fprintf(out, "  expires:       %s (%s)\n", info.ExpiresAt.Local().Format(time.RFC1123), state)
	}
	return nil
}

// passwordFlag returns --password or reads one line from stdin.
func passwordFlag(cmd *cobra.Command) (string, error) {
	password, _ := cmd.Flags().GetString("password")
	if password != "" {
		return password, nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	password = strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}

func messageOr(resp *nocsdk.LoginResponse, fallback string) string {
	if resp != nil && resp.Message != "" {
		return resp.Message
	}
	return fallback
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}

func success(w io.Writer, msg string) {
	_, _ = color.New(color.FgGreen).Fprintln(w, msg)
}
