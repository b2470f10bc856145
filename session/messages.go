package session

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMessage is the help text shown before anything has compiled.
const DefaultMessage = `Learn about WESL at <a href="https://wesl-lang.dev">wesl-lang.dev</a>.<br/><br/>` +
	`Options:<ul>` +
	`<li>imports: toggles the <a href="https://wesl-lang.dev/spec/Imports">import extension</a></li>` +
	`<li>conditionals: toggles <a href="https://wesl-lang.dev/spec/ConditionalTranslation">conditional translation</a>; ` +
	`features take <code>name=true, other=false</code></li>` +
	`<li>mangler: the <a href="https://wesl-lang.dev/spec/NameMangling">name mangling scheme</a> ` +
	`(escape is recommended, hash and none are wesl-rs only)</li>` +
	`<li>root: the file compilation starts from</li>` +
	`<li>strip: drops unused declarations; keep lists root declarations to preserve</li>` +
	`<li>eval: evaluates a const expression instead of printing the module</li>` +
	`</ul>`

// messagePolicy admits the markup our own messages use and nothing else.
var messagePolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("br", "ul", "li", "code", "pre")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.RequireNoFollowOnLinks(false)
	return p
}()

// sanitize passes an HTML message through the policy.
func sanitize(msg string) string {
	return messagePolicy.Sanitize(msg)
}

// textMessage renders plain backend text as HTML. Compiler messages contain
// angle brackets (array<f32>) that must survive as text.
func textMessage(msg string) string {
	if msg == "" {
		return ""
	}
	return sanitize("<pre>" + html.EscapeString(strings.TrimRight(msg, "\n")) + "</pre>")
}

func linkMessage(prefix, url string) string {
	u := html.EscapeString(url)
	return sanitize(html.EscapeString(prefix) + `<br/><a href="` + u + `">` + u + `</a>`)
}
