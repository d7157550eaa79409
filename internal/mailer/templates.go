package mailer

import (
	htmltemplate "html/template"
	texttemplate "text/template"
)

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 10px;">
  <h2 style="color: #2563eb; text-align: center; margin-bottom: 30px;">New {{.Topic}} Form Submission</h2>
  <div style="background-color: #f8fafc; padding: 20px; border-radius: 8px; margin-bottom: 20px;">
    <h3 style="color: #374151; margin-top: 0;">Contact Details:</h3>
    <p style="margin: 10px 0;"><strong>Name:</strong> {{.Name}}</p>
    <p style="margin: 10px 0;"><strong>Email:</strong> {{.Email}}</p>
    <p style="margin: 10px 0;"><strong>Service:</strong> {{.Service}}</p>
    <p style="margin: 10px 0;"><strong>Submitted:</strong> {{.Submitted}}</p>
  </div>
  <div style="background-color: #ffffff; padding: 20px; border: 1px solid #e5e7eb; border-radius: 8px;">
    <h3 style="color: #374151; margin-top: 0;">Message:</h3>
    <p style="line-height: 1.6; color: #4b5563; white-space: pre-wrap;">{{.Message}}</p>
  </div>
  <div style="margin-top: 30px; padding: 15px; background-color: #dbeafe; border-radius: 8px; text-align: center;">
    <p style="margin: 0; color: #1e40af; font-size: 14px;">
      This message was sent from the {{.Business}} website contact form.
      <br>Please respond to the customer directly at: {{.Email}}
    </p>
  </div>
</div>
`))

var textBody = texttemplate.Must(texttemplate.New("text").Parse(`You have received a new contact form message from the {{.Business}} website:

Name: {{.Name}}
Email: {{.Email}}
Service: {{.Service}}
Submitted: {{.Submitted}}

Message:
{{.Message}}

Please respond to the user directly at {{.Email}} if needed.
`))

type bodyData struct {
	Business  string
	Topic     string
	Name      string
	Email     string
	Service   string
	Submitted string
	Message   string
}
