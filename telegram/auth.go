package telegram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// Prompter implements auth.UserAuthenticator by asking on a terminal.
// Bots never use it; it backs the interactive login of user sessions.
type Prompter struct {
	PhoneNumber string // prompted for when empty
	In          io.Reader
	Out         io.Writer
	// ReadPassword reads a secret without echo; defaults to the terminal.
	ReadPassword func() (string, error)

	reader *bufio.Reader
}

var _ auth.UserAuthenticator = (*Prompter)(nil)

// NewPrompter returns a Prompter bound to stdin and stdout.
func NewPrompter(phone string) *Prompter {
	return &Prompter{
		PhoneNumber: phone,
		In:          os.Stdin,
		Out:         os.Stdout,
	}
}

func (p *Prompter) ask(prompt string) (string, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	fmt.Fprint(p.Out, prompt)
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *Prompter) Phone(_ context.Context) (string, error) {
	if p.PhoneNumber != "" {
		return p.PhoneNumber, nil
	}
	return p.ask("Enter phone in international format (e.g. +1234567890): ")
}

func (p *Prompter) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	fmt.Fprintln(p.Out)
	fmt.Fprintln(p.Out, "A login code has been sent to your Telegram app.")
	return p.ask("Enter code: ")
}

func (p *Prompter) Password(_ context.Context) (string, error) {
	fmt.Fprint(p.Out, "Enter 2FA password: ")
	read := p.ReadPassword
	if read == nil {
		read = func() (string, error) {
			pwd, err := term.ReadPassword(int(syscall.Stdin))
			return string(pwd), err
		}
	}
	pwd, err := read()
	if err != nil {
		return "", err
	}
	fmt.Fprintln(p.Out)
	return strings.TrimSpace(pwd), nil
}

func (p *Prompter) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

func (p *Prompter) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign up is not supported, register the account in a Telegram app first")
}
