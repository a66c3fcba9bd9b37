// Package mailsmtp is the hand-rolled SMTP wire codec (C1), session state
// machine (C2), and authenticator (C3) described in spec.md §4.1-4.3. It
// deliberately does not delegate to a general-purpose SMTP server library:
// the spec's FSM, reply strings, and AUTH mechanism set are fixed and
// narrow enough that a dedicated state machine is the clearer
// implementation than configuring a general one.
package mailsmtp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/mailfang/mailfang/internal/observability"
)

// state is the session's coarse phase.
type state int

const (
	stateCommand state = iota
	stateData
	stateAuth
)

// authSubState tracks which half of a multi-line AUTH exchange is pending.
type authSubState int

const (
	authNone authSubState = iota
	authPlainWaitingCredentials
	authLoginWaitingUsername
	authLoginWaitingPassword
	authCRAMWaitingResponse
)

// ReceivedMessage is the payload handed to the receive callback when DATA
// terminates, before MIME decomposition.
type ReceivedMessage struct {
	From       string
	Recipients []string
	RawBody    []byte
}

// ReceiveFunc is invoked synchronously from the session's perspective but
// MUST return quickly; implementations enqueue the actual persistence work
// rather than blocking the session on it (spec.md §9).
type ReceiveFunc func(ctx context.Context, msg ReceivedMessage)

// Session drives one accepted connection through the Command/Data/Auth FSM.
type Session struct {
	codec   *Codec
	creds   Credentials
	receive ReceiveFunc
	ctx     context.Context
	remote  string
	metrics *observability.Metrics

	state state

	greeted       bool
	authenticated bool
	mailFrom      string
	rcptTo        []string
	buffer        []string
	quit          bool

	authSub       authSubState
	authMechanism Mechanism
	authUsername  string
	cramChallenge string
}

// NewSession constructs a Session over conn's line codec. authenticated
// starts true iff creds carries no configured username/password. metrics may
// be nil, in which case the session records nothing.
func NewSession(ctx context.Context, conn net.Conn, creds Credentials, receive ReceiveFunc, metrics *observability.Metrics) *Session {
	return &Session{
		codec:         NewCodec(conn, conn),
		creds:         creds,
		receive:       receive,
		ctx:           ctx,
		remote:        conn.RemoteAddr().String(),
		authenticated: !creds.Configured(),
		metrics:       metrics,
	}
}

// Run drives the session to completion: greeting, command loop, then close.
// It returns only when the session ends, never panicking on a malformed or
// hostile client input.
func (s *Session) Run() {
	if err := s.codec.WriteLine("220 mailfang SMTP ready"); err != nil {
		s.recordSessionResult("error")
		return
	}

	for {
		line, err := s.codec.ReadLine()
		if err != nil {
			s.recordSessionResult("error")
			return
		}

		switch s.state {
		case stateData:
			s.handleDataLine(line)
		case stateAuth:
			s.handleAuthLine(line)
		default:
			s.handleCommandLine(line)
		}

		if s.quit {
			s.recordSessionResult("ok")
			return
		}
	}
}

func (s *Session) recordSessionResult(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SMTPSessionsTotal.WithLabelValues(result).Inc()
}

func (s *Session) reply(line string) {
	if err := s.codec.WriteLine(line); err != nil {
		s.quit = true
	}
}

func (s *Session) replyMulti(lines ...string) {
	for _, l := range lines {
		if err := s.codec.WriteLine(l); err != nil {
			s.quit = true
			return
		}
	}
}

func (s *Session) handleCommandLine(line string) {
	verb, rest := splitCommand(line)
	switch strings.ToUpper(verb) {
	case "HELO":
		s.greeted = true
		s.reply(fmt.Sprintf("250 Hello %s", strings.TrimSpace(rest)))
	case "EHLO":
		s.greeted = true
		s.replyMulti(
			fmt.Sprintf("250-Hello %s", strings.TrimSpace(rest)),
			"250-AUTH PLAIN LOGIN CRAM-MD5",
			fmt.Sprintf("250 SIZE %d", maxLineBytes),
		)
	case "MAIL":
		s.handleMail(rest)
	case "RCPT":
		s.handleRcpt(rest)
	case "DATA":
		s.handleDataCommand()
	case "RSET":
		s.mailFrom = ""
		s.rcptTo = nil
		s.buffer = nil
		s.reply("250 Reset state")
	case "NOOP":
		s.reply("250 OK")
	case "AUTH":
		s.handleAuthCommand(rest)
	case "QUIT":
		s.quit = true
		s.reply("221 Bye")
	case "":
		s.reply("500 Syntax error: empty command")
	default:
		s.reply("502 Command not implemented")
	}
}

func (s *Session) handleMail(rest string) {
	if !s.greeted {
		s.reply("503 Bad sequence of commands: send HELO/EHLO first")
		return
	}
	if !s.authenticated {
		s.reply("530 Authentication required")
		return
	}
	addr, ok := parseAddrArg(rest, "FROM:")
	if !ok {
		s.reply("500 Syntax error in MAIL FROM")
		return
	}
	s.mailFrom = addr
	s.rcptTo = nil
	s.reply("250 Sender OK")
}

func (s *Session) handleRcpt(rest string) {
	if s.mailFrom == "" {
		s.reply("503 Bad sequence of commands: send MAIL FROM first")
		return
	}
	addr, ok := parseAddrArg(rest, "TO:")
	if !ok {
		s.reply("500 Syntax error in RCPT TO")
		return
	}
	s.rcptTo = append(s.rcptTo, addr)
	s.reply("250 Recipient OK")
}

func (s *Session) handleDataCommand() {
	if len(s.rcptTo) == 0 {
		s.reply("503 Bad sequence of commands: need RCPT TO first")
		return
	}
	s.state = stateData
	s.buffer = nil
	s.reply("354 End data with <CR><LF>.<CR><LF>")
}

func (s *Session) handleDataLine(line string) {
	if line == "." {
		s.finishData()
		return
	}
	if strings.HasPrefix(line, "..") {
		line = line[1:]
	}
	s.buffer = append(s.buffer, line)
}

func (s *Session) finishData() {
	raw := []byte(strings.Join(s.buffer, "\r\n"))
	msg := ReceivedMessage{
		From:       s.mailFrom,
		Recipients: append([]string(nil), s.rcptTo...),
		RawBody:    raw,
	}
	if s.receive != nil {
		s.receive(s.ctx, msg)
	}
	if s.metrics != nil {
		s.metrics.SMTPMessagesTotal.Inc()
		s.metrics.SMTPDataSizeBytes.Observe(float64(len(raw)))
	}
	s.buffer = nil
	// Clear the transaction per spec.md §9: a client must start a new
	// MAIL FROM for a subsequent message, matching RFC 5321 §4.1.1.4.
	s.mailFrom = ""
	s.rcptTo = nil
	s.state = stateCommand
	s.reply("250 Message received")
}

func (s *Session) handleAuthCommand(rest string) {
	if !s.greeted {
		s.reply("503 Bad sequence of commands: send HELO/EHLO first")
		return
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		s.reply("500 Syntax error in AUTH")
		return
	}
	mech, ok := ParseMechanism(fields[0])
	if !ok {
		s.reply("504 Unrecognized authentication type")
		return
	}
	s.authMechanism = mech

	var initial string
	if len(fields) > 1 {
		initial = fields[1]
	}

	switch mech {
	case MechPlain:
		if initial != "" {
			s.finishAuth(VerifyPlain(s.creds, initial))
			return
		}
		s.reply("334 ")
		s.state = stateAuth
		s.authSub = authPlainWaitingCredentials
	case MechLogin:
		s.reply("334 VXNlcm5hbWU6")
		s.state = stateAuth
		s.authSub = authLoginWaitingUsername
	case MechCRAMMD5:
		challenge, err := GenerateCRAMMD5Challenge()
		if err != nil {
			slog.Error("mailsmtp: failed to generate CRAM-MD5 challenge", "error", err)
			s.reply("454 Temporary authentication failure")
			return
		}
		s.cramChallenge = challenge
		s.reply("334 " + encodeBase64(challenge))
		s.state = stateAuth
		s.authSub = authCRAMWaitingResponse
	}
}

func (s *Session) handleAuthLine(line string) {
	switch s.authSub {
	case authPlainWaitingCredentials:
		s.finishAuth(VerifyPlain(s.creds, line))
	case authLoginWaitingUsername:
		username, ok := DecodeBase64Line(line)
		if !ok {
			s.authFail()
			return
		}
		s.authUsername = username
		s.reply("334 UGFzc3dvcmQ6")
		s.authSub = authLoginWaitingPassword
	case authLoginWaitingPassword:
		password, ok := DecodeBase64Line(line)
		if !ok {
			s.authFail()
			return
		}
		s.finishAuth(VerifyLogin(s.creds, s.authUsername, password))
	case authCRAMWaitingResponse:
		s.finishAuth(VerifyCRAMMD5(s.creds, s.cramChallenge, line))
	default:
		s.authFail()
	}
}

func (s *Session) finishAuth(ok bool) {
	if ok {
		s.authenticated = true
		s.reply("235 Authentication successful")
	} else {
		s.reply("535 Authentication failed")
	}
	s.resetAuthState()
}

func (s *Session) authFail() {
	s.reply("535 Authentication failed")
	s.resetAuthState()
}

func (s *Session) resetAuthState() {
	s.state = stateCommand
	s.authSub = authNone
	s.authUsername = ""
	s.cramChallenge = ""
}

// splitCommand splits a command line into its verb and remaining argument
// text on the first run of whitespace.
func splitCommand(line string) (verb, rest string) {
	line = strings.TrimSpace(line)
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx+1:])
}

// parseAddrArg extracts the address from a `FROM:<addr>` or `TO:<addr>`
// argument, tolerating the common "FROM: <addr>" spacing variant.
func parseAddrArg(rest, prefix string) (string, bool) {
	rest = strings.TrimSpace(rest)
	upperRest := strings.ToUpper(rest)
	upperPrefix := strings.ToUpper(prefix)
	if !strings.HasPrefix(upperRest, upperPrefix) {
		return "", false
	}
	value := strings.TrimSpace(rest[len(prefix):])
	value = strings.TrimPrefix(value, "<")
	if idx := strings.IndexByte(value, '>'); idx >= 0 {
		value = value[:idx]
	}
	return value, true
}
