package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/http/middleware"
)

var (
	tokenUserID string
	tokenEmail  string
	tokenName   string
	tokenRole   string
	tokenTTL    time.Duration
	tokenSecret string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local testing",
	Long:  `Sign an HS256 bearer token carrying the given identity with JWT_SECRET (or --secret).`,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "User ID (required)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email address")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name")
	tokenCmd.Flags().StringVar(&tokenRole, "role", domain.RoleInterviewee, "Role: interviewer or interviewee")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "Signing secret (defaults to JWT_SECRET)")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	secret := tokenSecret
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return errors.New("no signing secret: set JWT_SECRET or pass --secret")
	}
	role := strings.ToLower(strings.TrimSpace(tokenRole))
	if role != domain.RoleInterviewer && role != domain.RoleInterviewee {
		return fmt.Errorf("invalid role %q", tokenRole)
	}
	if tokenTTL <= 0 {
		return errors.New("ttl must be positive")
	}
	tok, err := middleware.SignToken(secret, domain.Identity{
		UserID: strings.TrimSpace(tokenUserID),
		Email:  tokenEmail,
		Name:   tokenName,
		Role:   role,
	}, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
