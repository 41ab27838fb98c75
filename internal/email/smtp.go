package email

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

type Sender struct {
	cfg SMTPConfig
}

func NewSender(cfg SMTPConfig) *Sender {
	return &Sender{cfg: cfg}
}

func (s *Sender) SendText(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Pass)
	return d.DialAndSend(m)
}

func (s *Sender) SendVerificationCode(to, code string) error {
	subject := "Your verification code"
	body := fmt.Sprintf(
		"Hello,\n\nYour verification code is: %s\n\nIt expires in 5 minutes. If you did not request it, ignore this email.\n",
		code,
	)
	return s.SendText(to, subject, body)
}

// GenerateCode returns a 6-digit numeric verification code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
