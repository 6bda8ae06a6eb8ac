// Command hashpw prints the argon2id hash of a password read from stdin, for
// use as auth.users[].password_hash in the server configuration.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/KevinKickass/OpenShmInspector/internal/auth"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "hashpw",
		Usage: "hash a password for the inspector configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "verify",
				Usage: "check the password against an existing hash instead",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	fmt.Fprint(os.Stderr, "Password: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("failed to read password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}

	hasher := auth.NewPasswordHasher()
	if encoded := c.String("verify"); encoded != "" {
		ok, err := hasher.VerifyPassword(password, encoded)
		if err != nil {
			return err
		}
		if !ok {
			return cli.Exit("password does not match", 1)
		}
		fmt.Println("ok")
		return nil
	}

	hash, err := hasher.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	fmt.Println(hash)
	return nil
}
