package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/auth"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"golang.org/x/term"
)

// issue-token mints a bearer token signed with JWT_SECRET for local development and
// smoke tests. Identity is owned by the school portal in production.
func main() {
	var (
		role   string
		userID int
	)
	flag.StringVar(&role, "role", "", "student or teacher")
	flag.IntVar(&userID, "user", 0, "user ID carried in the token")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	// Missing flags are prompted for only when a person is at the terminal.
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	reader := bufio.NewReader(os.Stdin)

	if role == "" {
		if !interactive {
			log.Fatal().Msg("-role is required")
		}
		fmt.Print("Enter Role (student/teacher): ")
		role, _ = reader.ReadString('\n')
		role = strings.TrimSpace(role)
	}

	if userID <= 0 {
		if !interactive {
			log.Fatal().Msg("-user is required")
		}
		fmt.Print("Enter User ID: ")
		raw, _ := reader.ReadString('\n')
		p, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || p <= 0 {
			fmt.Println("Error: User ID must be a positive number")
			os.Exit(1)
		}
		userID = p
	}

	r := auth.Role(strings.ToLower(role))
	if r != auth.RoleStudent && r != auth.RoleTeacher {
		fmt.Println("Error: Role must be student or teacher")
		os.Exit(1)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	token, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTExpiry).Issue(r, userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	if interactive {
		fmt.Printf("\n%s token for user %d (valid %s):\n", r, userID, cfg.JWTExpiry)
	}
	fmt.Println(token)
}
