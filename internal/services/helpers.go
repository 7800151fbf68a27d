package services

import (
	"fmt"
	"html"
	"time"
)

// operatorNotificationHTML is the internal notification sent for every issued code.
const operatorNotificationHTML = `<!DOCTYPE html>
<html>
<head>
<style>
  body { font-family: monospace; line-height: 1.5; }
  .container { border: 1px solid #ccc; padding: 15px; max-width: 600px; }
  h2 { margin-top: 0; }
  ul { list-style: none; padding: 0; }
  li { margin-bottom: 5px; }
  .code { font-size: 24px; font-weight: bold; letter-spacing: 4px; }
</style>
</head>
<body>
  <div class="container">
    <h2>Verification Request</h2>
    <ul>
      <li><strong>Phone:</strong> %s</li>
      <li><strong>Code:</strong> <span class="code">%s</span></li>
      <li><strong>IP:</strong> %s</li>
      <li><strong>Expires (UTC):</strong> %s</li>
    </ul>
    <p>Please send this code to the user via SMS immediately.</p>
  </div>
</body>
</html>`

func operatorNotificationSubject(prefix, phone string) string {
	if prefix == "" {
		return "New Verification: " + phone
	}
	return fmt.Sprintf("%s New Verification: %s", prefix, phone)
}

func operatorNotificationBody(phone, code, ip string, expiresAt time.Time) (plain, htmlBody string) {
	plain = fmt.Sprintf(
		"Phone: %s\nCode: %s\nIP: %s\n\nPlease send this code to the user via SMS immediately.",
		phone, code, ip,
	)
	htmlBody = fmt.Sprintf(
		operatorNotificationHTML,
		html.EscapeString(phone),
		html.EscapeString(code),
		html.EscapeString(ip),
		expiresAt.UTC().Format(time.RFC1123Z),
	)
	return plain, htmlBody
}

// placeholderEmail is the synthesized address for phone-only accounts.
func placeholderEmail(phone, domain string) string {
	return phone + "@" + domain
}
