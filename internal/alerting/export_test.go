package alerting

// RenderEmailHTMLForTest exposes the email body renderer. Test hook only.
func RenderEmailHTMLForTest(alert Alert) string {
	return renderEmailHTML(alert)
}
