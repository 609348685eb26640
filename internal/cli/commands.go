package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"license-service/internal/db"
	"license-service/internal/pkg/jwt"
	"license-service/internal/pkg/keygen"
	"license-service/internal/repository/postgres"
)

// MigrateCmd applies the schema bundled into the binary.
type MigrateCmd struct {
	DatabaseURL string `help:"PostgreSQL connection URL" env:"DATABASE_URL" required:""`
}

func (cmd *MigrateCmd) Run(out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.ConnectDB(ctx, db.PostgresConfig{URL: cmd.DatabaseURL, MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := postgres.NewDB(pool).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, name := range applied {
		fmt.Fprintf(out, "applied %s\n", name)
	}
	return nil
}

// TokenCmd signs an access token for an operator.
type TokenCmd struct {
	PrivateKey string        `help:"RSA private key (PEM)" env:"JWT_PRIVATE_KEY_PATH" required:"" type:"existingfile"`
	Issuer     string        `help:"Token issuer" env:"JWT_ISSUER" default:"license-service"`
	Audience   string        `help:"Token audience" env:"JWT_AUDIENCE" default:"license-admin"`
	Subject    string        `help:"Operator the token names" required:""`
	Role       []string      `help:"Roles to grant" default:"admin" enum:"admin,super_admin"`
	TTL        time.Duration `help:"Token lifetime" default:"12h"`
}

func (cmd *TokenCmd) Run(out io.Writer) error {
	priv, err := jwt.LoadRSAPrivateKeyFromPEM(cmd.PrivateKey)
	if err != nil {
		return err
	}
	gen := jwt.NewGenerator(priv, cmd.Issuer, cmd.Audience, "", cmd.TTL)
	token, jti, err := gen.GenerateAccessToken(cmd.Subject, cmd.Role, cmd.TTL)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(out, token)
	fmt.Fprintf(out, "# jti=%s expires=%s\n", jti, time.Now().Add(cmd.TTL).UTC().Format(time.RFC3339))
	return nil
}

// KeygenCmd prints keys in the format the service issues. Handy for
// checking a prefix before changing KEYGEN_PREFIX.
type KeygenCmd struct {
	Prefix string `help:"Key prefix" default:"LIC"`
	Count  int    `help:"How many keys" default:"1"`
}

func (cmd *KeygenCmd) Run(out io.Writer) error {
	gen := keygen.New(strings.ToUpper(cmd.Prefix))
	for i := 0; i < cmd.Count; i++ {
		key, err := gen.Generate()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, key)
	}
	return nil
}

// ValidateCmd calls the public validation endpoint.
type ValidateCmd struct {
	Key    string `help:"License key" required:""`
	Domain string `help:"Domain the key is used on" required:""`
	Check  bool   `help:"Only report status, never activate"`
}

func (cmd *ValidateCmd) Run(globals *Globals, out io.Writer) error {
	action := "activate"
	if cmd.Check {
		action = "check"
	}
	client := NewClient(globals.Server, globals.Timeout)
	verdict, err := client.Validate(context.Background(), cmd.Key, cmd.Domain, action)
	if err != nil {
		return err
	}
	printVerdict(out, verdict)
	if !verdict.Valid {
		return fmt.Errorf("license not valid: %s", verdict.Reason)
	}
	return nil
}

// DeactivateCmd frees a domain's slot.
type DeactivateCmd struct {
	Key    string `help:"License key" required:""`
	Domain string `help:"Domain to release" required:""`
}

func (cmd *DeactivateCmd) Run(globals *Globals, out io.Writer) error {
	client := NewClient(globals.Server, globals.Timeout)
	verdict, err := client.Deactivate(context.Background(), cmd.Key, cmd.Domain)
	if err != nil {
		return err
	}
	if verdict.Reason != "" && verdict.Reason != "inactive" {
		printVerdict(out, verdict)
		return fmt.Errorf("deactivation refused: %s", verdict.Reason)
	}
	fmt.Fprintf(out, "released %s\n", verdict.Domain)
	return nil
}
