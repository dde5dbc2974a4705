package i18n

import (
	"strconv"
	"strings"
)

type EmailContent struct {
	Subject string
	HTML    string
}

type emailStrings struct {
	VerificationSubject string
	VerificationHTML    string

	WelcomeSubject string
	WelcomeHTML    string

	ResetRequestSubject string
	ResetRequestHTML    string

	ResetSuccessSubject string
	ResetSuccessHTML    string
}

var emailTranslations = map[string]emailStrings{
	"en": {
		VerificationSubject: "Verify your email",
		VerificationHTML: "<p>Thank you for signing up!</p>" +
			"<p>Your verification code is:</p>" +
			"<p style=\"font-size:32px;font-weight:bold;letter-spacing:5px\">{code}</p>" +
			"<p>Enter this code on the verification page to complete your registration.</p>" +
			"<p>This code will expire in {hours} hours for security reasons.</p>" +
			"<p>If you didn't create an account with us, please ignore this email.</p>",

		WelcomeSubject: "Welcome to Attendance System",
		WelcomeHTML: "<p>Hello {name},</p>" +
			"<p>Your email has been verified and your account is ready.</p>" +
			"<p>You can now sign in and open your dashboard.</p>",

		ResetRequestSubject: "Reset your password",
		ResetRequestHTML: "<p>We received a request to reset your password.</p>" +
			"<p>If you didn't make this request, please ignore this email.</p>" +
			"<p>To reset your password, click the link below:</p>" +
			"<p><a href=\"{link}\">Reset Password</a></p>" +
			"<p>This link will expire in {hours} hour(s) for security reasons.</p>",

		ResetSuccessSubject: "Password Reset Successful",
		ResetSuccessHTML: "<p>We're writing to confirm that your password has been successfully reset.</p>" +
			"<p>If you did not initiate this password reset, please contact our support team immediately.</p>" +
			"<p>For security reasons, we recommend that you use a strong password you don't use elsewhere.</p>",
	},
	"de": {
		VerificationSubject: "E-Mail verifizieren",
		VerificationHTML: "<p>Danke für Ihre Registrierung!</p>" +
			"<p>Ihr Verifizierungscode lautet:</p>" +
			"<p style=\"font-size:32px;font-weight:bold;letter-spacing:5px\">{code}</p>" +
			"<p>Geben Sie diesen Code auf der Verifizierungsseite ein, um die Registrierung abzuschließen.</p>" +
			"<p>Der Code ist aus Sicherheitsgründen {hours} Stunden gültig.</p>" +
			"<p>Wenn Sie kein Konto erstellt haben, ignorieren Sie diese E-Mail.</p>",

		WelcomeSubject: "Willkommen beim Anwesenheitssystem",
		WelcomeHTML: "<p>Hallo {name},</p>" +
			"<p>Ihre E-Mail-Adresse wurde bestätigt und Ihr Konto ist bereit.</p>" +
			"<p>Sie können sich jetzt anmelden und Ihr Dashboard öffnen.</p>",

		ResetRequestSubject: "Passwort zurücksetzen",
		ResetRequestHTML: "<p>Wir haben eine Anfrage zum Zurücksetzen Ihres Passworts erhalten.</p>" +
			"<p>Wenn Sie dies nicht angefordert haben, ignorieren Sie diese E-Mail.</p>" +
			"<p>Klicken Sie auf den folgenden Link, um Ihr Passwort zurückzusetzen:</p>" +
			"<p><a href=\"{link}\">Passwort zurücksetzen</a></p>" +
			"<p>Der Link ist {hours} Stunde(n) gültig.</p>",

		ResetSuccessSubject: "Passwort erfolgreich zurückgesetzt",
		ResetSuccessHTML: "<p>Ihr Passwort wurde erfolgreich zurückgesetzt.</p>" +
			"<p>Wenn Sie dies nicht veranlasst haben, wenden Sie sich bitte sofort an unser Support-Team.</p>",
	},
}

func emailStringsForLocale(locale string) emailStrings {
	if val, ok := emailTranslations[NormalizeLocale(locale)]; ok {
		return val
	}
	return emailTranslations[DefaultLocale]
}

func renderTemplate(tmpl string, values map[string]string) string {
	if tmpl == "" || len(values) == 0 {
		return tmpl
	}

	replacements := make([]string, 0, len(values)*2)
	for key, value := range values {
		replacements = append(replacements, "{"+key+"}", value)
	}
	return strings.NewReplacer(replacements...).Replace(tmpl)
}

func VerificationEmail(locale, code string, hours int) EmailContent {
	t := emailStringsForLocale(locale)
	return EmailContent{
		Subject: t.VerificationSubject,
		HTML:    renderTemplate(t.VerificationHTML, map[string]string{"code": code, "hours": strconv.Itoa(hours)}),
	}
}

func WelcomeEmail(locale, name string) EmailContent {
	t := emailStringsForLocale(locale)
	return EmailContent{
		Subject: t.WelcomeSubject,
		HTML:    renderTemplate(t.WelcomeHTML, map[string]string{"name": escapeHTML(name)}),
	}
}

func PasswordResetEmail(locale, link string, hours int) EmailContent {
	t := emailStringsForLocale(locale)
	return EmailContent{
		Subject: t.ResetRequestSubject,
		HTML:    renderTemplate(t.ResetRequestHTML, map[string]string{"link": escapeHTML(link), "hours": strconv.Itoa(hours)}),
	}
}

func PasswordResetSuccessEmail(locale string) EmailContent {
	t := emailStringsForLocale(locale)
	return EmailContent{Subject: t.ResetSuccessSubject, HTML: t.ResetSuccessHTML}
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;")

// escapeHTML guards user-controlled values (names) interpolated into bodies.
func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
