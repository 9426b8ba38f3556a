package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/TheGojiOG/vuserver/internal/auth"
	"github.com/TheGojiOG/vuserver/internal/rpc"
)

type statusCmd struct{}

func (statusCmd) Run(c *rpc.Client, ctx context.Context) error {
	snap, err := c.Status(ctx)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

type startCmd struct{}

func (startCmd) Run(c *rpc.Client, ctx context.Context) error {
	snap, err := c.Start(ctx)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

type stopCmd struct{}

func (stopCmd) Run(c *rpc.Client, ctx context.Context) error {
	snap, err := c.Stop(ctx)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

type restartCmd struct{}

func (restartCmd) Run(c *rpc.Client, ctx context.Context) error {
	snap, err := c.Restart(ctx)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

type commandCmd struct {
	Words []string `arg:"" passthrough:"" help:"RCON command and arguments, for example admin.say \"hello\" all."`
}

func (cmd commandCmd) Run(c *rpc.Client, ctx context.Context) error {
	response, err := c.Command(ctx, strings.Join(cmd.Words, " "))
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(response, " "))
	return nil
}

type hashPasswordCmd struct {
	Cost int `help:"bcrypt cost." default:"12"`
}

// Run reads the password from VU_ADMIN_PASSWORD and prints the hash for
// auth.admin_password_hash.
func (cmd hashPasswordCmd) Run() error {
	password := os.Getenv("VU_ADMIN_PASSWORD")
	if password == "" {
		return errors.New("VU_ADMIN_PASSWORD must be set")
	}
	hash, err := auth.HashPassword(password, cmd.Cost)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

var cli struct {
	Addr    string        `help:"Control service address." default:"127.0.0.1:9090" env:"VUCTL_ADDR"`
	Token   string        `help:"Bearer token for the control service." env:"VUCTL_TOKEN"`
	Timeout time.Duration `help:"Request timeout." default:"15s"`

	Status  statusCmd  `cmd:"" help:"Show server status."`
	Start   startCmd   `cmd:"" help:"Start the server."`
	Stop    stopCmd    `cmd:"" help:"Stop the server."`
	Restart restartCmd `cmd:"" help:"Restart the server."`
	Command commandCmd `cmd:"" help:"Send an RCON command."`

	HashPassword hashPasswordCmd `cmd:"" name:"hash-password" help:"Print a bcrypt hash of $VU_ADMIN_PASSWORD for the manager config."`
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("vuctl"),
		kong.Description("Control a running vuserver supervisor"),
		kong.UsageOnError(),
	)

	if kctx.Command() == "hash-password" {
		kctx.FatalIfErrorf(kctx.Run())
		return
	}

	client, err := rpc.Dial(cli.Addr, cli.Token)
	kctx.FatalIfErrorf(err)

	ctx, cancel := context.WithTimeout(context.Background(), cli.Timeout)
	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(client)
	cancel()
	client.Close()
	kctx.FatalIfErrorf(err)
}
