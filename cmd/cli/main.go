// Command chitchat is a CLI client for the chat server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/and161185/chitchat/internal/client"
	"github.com/and161185/chitchat/internal/crypto"
)

// ---- config/account store ----

type accountFile struct {
	Username string `json:"username"`
	Tag      int    `json:"tag"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "chitchat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "chitchat")
}

func keyPath() string     { return filepath.Join(cfgDir(), "key.pem") }
func accountPath() string { return filepath.Join(cfgDir(), "account.json") }

func saveAccount(a accountFile) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.OpenFile(accountPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

func loadAccount() (accountFile, error) {
	var a accountFile
	b, err := os.ReadFile(accountPath())
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return a, err
	}
	if a.Username == "" || a.Tag <= 0 {
		return a, errors.New("no saved account (register first)")
	}
	return a, nil
}

// ---- connection ----

func identity() (*crypto.Identity, error) {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return nil, err
	}
	return crypto.LoadOrCreateIdentity(keyPath())
}

func connect(ctx context.Context, addr string) (*client.Client, error) {
	id, err := identity()
	if err != nil {
		return nil, err
	}
	return client.Dial(ctx, addr, id)
}

// session dials and logs in with the saved account.
func session(ctx context.Context, addr, password string) (*client.Client, error) {
	acc, err := loadAccount()
	if err != nil {
		return nil, err
	}
	c, err := connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	if err := c.Login(acc.Username, acc.Tag, password); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `chitchat CLI
Usage:
  chitchat -addr HOST:PORT [-p password] <cmd> [args]

The password may also be set with CHITCHAT_PASSWORD.

Commands:
  version
  register  -u <username>                       (saves account)
  ping
  chats                                         (lists chats)
  chat      -id <chat>
  create    -name <name> [-desc <text>] [-invite alice#12,bob#7]
  send      -chat <id> (-m <text> | -file <path|->)
  fetch                                         (drains unread messages)
  status    -set online|busy|away|invisible|offline
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands. Every command except register logs in with the saved
// account and logs out when done.
func main() {
	// global flags
	addr := flag.String("addr", "localhost:5050", "server addr")
	password := flag.String("p", os.Getenv("CHITCHAT_PASSWORD"), "password")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cmd == "version" {
		fmt.Printf("chitchat %s (%s)\n", version, buildDate)
		return
	}

	if cmd == "register" {
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		u := fs.String("u", "", "username")
		_ = fs.Parse(args)
		if strings.TrimSpace(*u) == "" || *password == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		c, err := connect(ctx, *addr)
		if err != nil {
			fail(err)
		}
		defer c.Close()
		tag, err := c.Register(*u, *password)
		if err != nil {
			fail(err)
		}
		self := c.Self()
		if err := saveAccount(accountFile{Username: self.Username, Tag: tag}); err != nil {
			fail(err)
		}
		_ = c.Logout()
		fmt.Println(self.Handle())
		return
	}

	if *password == "" {
		fmt.Fprintln(os.Stderr, "need -p or CHITCHAT_PASSWORD")
		os.Exit(1)
	}
	c, err := session(ctx, *addr, *password)
	if err != nil {
		fail(err)
	}
	defer c.Close()
	defer func() { _ = c.Logout() }()

	switch cmd {

	case "ping":
		start := time.Now()
		if _, err := c.Ping(start); err != nil {
			fail(err)
		}
		fmt.Println(time.Since(start).Round(time.Microsecond))

	case "chats":
		ids, err := c.ChatIDs()
		if err != nil {
			fail(err)
		}
		if len(ids) == 0 {
			printJSON([]any{})
			return
		}
		chats, err := c.GetChats(ids...)
		if err != nil {
			fail(err)
		}
		printJSON(chats)

	case "chat":
		fs := flag.NewFlagSet("chat", flag.ExitOnError)
		id := fs.Int64("id", 0, "chat id")
		_ = fs.Parse(args)
		chats, err := c.GetChats(*id)
		if err != nil {
			fail(err)
		}
		if len(chats) == 0 {
			fail(fmt.Errorf("chat %d not found", *id))
		}
		printJSON(chats[0])

	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		name := fs.String("name", "", "chat name")
		desc := fs.String("desc", "", "description")
		invite := fs.String("invite", "", "comma-separated handles (name#tag)")
		_ = fs.Parse(args)
		refs, err := parseHandles(*invite)
		if err != nil {
			fail(err)
		}
		ci, err := c.CreateChat(*name, *desc, refs...)
		if err != nil {
			fail(err)
		}
		printJSON(ci)

	case "send":
		fs := flag.NewFlagSet("send", flag.ExitOnError)
		chat := fs.Int64("chat", 0, "chat id")
		msg := fs.String("m", "", "message text")
		file := fs.String("file", "", "read message from file or - for stdin")
		_ = fs.Parse(args)
		text, err := messageText(*msg, *file)
		if err != nil {
			fail(err)
		}
		seq, err := c.Send(*chat, text)
		if err != nil {
			fail(err)
		}
		fmt.Println(seq)

	case "fetch":
		msgs, err := c.Fetch()
		if err != nil {
			fail(err)
		}
		printJSON(msgs)

	case "status":
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		set := fs.String("set", "online", "presence")
		_ = fs.Parse(args)
		st, err := parseStatus(*set)
		if err != nil {
			fail(err)
		}
		if err := c.SetStatus(st); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	default:
		usage()
	}
}

// ---- helpers ----

func fail(err error) {
	var be *client.BackoffError
	if errors.As(err, &be) {
		fmt.Fprintf(os.Stderr, "blocked until %s\n", be.Until.Local().Format(time.RFC3339))
		os.Exit(1)
	}
	if reason, ok := client.IsRemote(err); ok {
		fmt.Fprintf(os.Stderr, "server error: %s\n", reason)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
