package services

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// Mailer delivers the verification email. The production implementation
// talks SMTP; tests substitute a recording stub. Delivery is one-shot,
// with no retry.
type Mailer interface {
	SendVerification(ctx context.Context, to, link string) error
}

const verificationSubject = "Please Verify Your Email - CFP Mainpro+ Credits for The Electronic Asthma Management System (eAMS)"

func verificationBody(link string) string {
	return fmt.Sprintf(`<p>Hello,</p>

<p>Thank you for using the Electronic Asthma Management System learning activity. To verify your email and proceed with completing your pre-test, please click on the link below:</p>
<a href="%s">Verify Email</a> <br>

<p>After completing the pre-test, we recommend reviewing the <a href="https://easthma.ca/mp_instructions#go1">linked articles</a> and interacting with the eAMS on a minimum of 5 patients before completing the <a href="https://easthma.ca/mp_instructions#go2">post-test</a> and evaluation form. You can earn up to 6 credits for a single application (estimated 2 hours, at 3 credits/hour), up to a maximum of 72 credits per year (e.g. if you repeat the activity monthly). You can learn more about this on our <a href="https://easthma.ca/mainpro">website</a>.</p>

<p>If you have any questions or need any assistance, please let us know.</p>

<p>Kind regards,</p>
<p>eAMS Support Team</p>
`, link)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends verification mail over implicit-TLS SMTP.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendVerification(ctx context.Context, to, link string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject(verificationSubject)
	msg.SetBodyString(gomail.TypeTextHTML, verificationBody(link))

	client, err := gomail.NewClient(m.cfg.Host,
		gomail.WithPort(m.cfg.Port),
		gomail.WithSSL(),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.cfg.Username),
		gomail.WithPassword(m.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}

var _ Mailer = (*SMTPMailer)(nil)
