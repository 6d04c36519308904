package template

import "github.com/kursadbilgin/mail-engine/internal/domain"

// BuiltIns returns the pre-built templates registered at startup.
func BuiltIns() []domain.Template {
	return []domain.Template{
		{
			ID:      "welcome",
			Name:    "Welcome",
			Subject: "Welcome to {{company_name}}, {{name}}!",
			HTML: `<h1>Welcome, {{name}}!</h1>
<p>Thanks for joining {{company_name}}. Your account is ready.</p>
<p><a href="{{login_url}}">Sign in to get started</a></p>
<p>Questions? Write to {{support_email}}.</p>
<p>&copy; {{year}} {{company_name}}</p>`,
			Text: `Welcome, {{name}}!

Thanks for joining {{company_name}}. Your account is ready.
Sign in: {{login_url}}
Questions? Write to {{support_email}}.

(c) {{year}} {{company_name}}`,
			Variables: []string{"name", "company_name", "login_url", "support_email"},
			BuiltIn:   true,
		},
		{
			ID:      "password_reset",
			Name:    "Password reset",
			Subject: "Reset your {{company_name}} password",
			HTML: `<p>Hi {{name}},</p>
<p>We received a request to reset your password. The link below expires in {{expires_in}}.</p>
<p><a href="{{reset_url}}">Reset password</a></p>
<p>If you did not request this, you can ignore this email.</p>
<p>&copy; {{year}} {{company_name}}</p>`,
			Text: `Hi {{name}},

We received a request to reset your password. The link below expires in {{expires_in}}.
{{reset_url}}

If you did not request this, you can ignore this email.`,
			Variables: []string{"name", "company_name", "reset_url", "expires_in"},
			BuiltIn:   true,
		},
		{
			ID:      "notification",
			Name:    "Notification",
			Subject: "{{title}}",
			HTML: `<h2>{{title}}</h2>
<p>{{message}}</p>
<p><a href="{{action_url}}">{{action_text}}</a></p>`,
			Text: `{{title}}

{{message}}

{{action_text}}: {{action_url}}`,
			Variables: []string{"title", "message", "action_url", "action_text"},
			BuiltIn:   true,
		},
	}
}
