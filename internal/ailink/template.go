package ailink

import (
	"errors"
	"strings"

	"github.com/storelens/storelens/internal/ailink/prompt"
)

const defaultUserTemplate = "{{url}}"

// renderPrompt renders both templates of def against vars.
func renderPrompt(def *prompt.Prompt, vars map[string]string) (string, string, error) {
	if def == nil {
		return "", "", errors.New("prompt is required")
	}
	system := renderTemplate(def.Config.SystemTemplate, vars)
	if strings.TrimSpace(system) == "" {
		return "", "", errors.New("system prompt is required")
	}
	user := def.Config.UserTemplate
	if user == "" {
		user = defaultUserTemplate
	}
	return system, strings.TrimSpace(renderTemplate(user, vars)), nil
}

// renderTemplate expands {{name}} and {{#if name}}..{{else}}..{{/if}} in a
// single pass. Substituted values are never rescanned, so page markup that
// happens to contain braces is emitted as is. Unknown variables and
// unbalanced tags are left in the output.
func renderTemplate(src string, vars map[string]string) string {
	nodes, _, _ := parseTemplate(src, 0, false)
	var b strings.Builder
	writeNodes(&b, nodes, vars)
	return b.String()
}

type tmplNode struct {
	text string // literal text, or the raw tag of a variable
	name string // variable or condition name
	cond bool
	then []tmplNode
	els  []tmplNode
}

// parseTemplate reads nodes from pos until EOF or, inside a block, the next
// {{else}} or {{/if}} at this depth. It returns that closing tag.
func parseTemplate(src string, pos int, inBlock bool) ([]tmplNode, int, string) {
	var nodes []tmplNode
	for pos < len(src) {
		open := strings.Index(src[pos:], "{{")
		if open < 0 {
			break
		}
		open += pos
		end := strings.Index(src[open:], "}}")
		if end < 0 {
			break
		}
		end += open + 2

		if open > pos {
			nodes = append(nodes, tmplNode{text: src[pos:open]})
		}
		raw := src[open:end]
		tag := strings.TrimSpace(raw[2 : len(raw)-2])
		pos = end

		switch {
		case tag == "else" || tag == "/if":
			if inBlock {
				return nodes, pos, tag
			}
			nodes = append(nodes, tmplNode{text: raw})
		case strings.HasPrefix(tag, "#if "):
			node := tmplNode{cond: true, name: strings.TrimSpace(tag[len("#if "):])}
			next, closing := pos, ""
			node.then, next, closing = parseTemplate(src, next, true)
			if closing == "else" {
				node.els, next, closing = parseTemplate(src, next, true)
			}
			if closing != "/if" {
				// Unbalanced: keep the opening tag and render what follows.
				nodes = append(nodes, tmplNode{text: raw})
				continue
			}
			nodes = append(nodes, node)
			pos = next
		default:
			nodes = append(nodes, tmplNode{text: raw, name: tag})
		}
	}
	if pos < len(src) {
		nodes = append(nodes, tmplNode{text: src[pos:]})
	}
	return nodes, len(src), ""
}

func writeNodes(b *strings.Builder, nodes []tmplNode, vars map[string]string) {
	for _, n := range nodes {
		switch {
		case n.cond:
			if strings.TrimSpace(vars[n.name]) != "" {
				writeNodes(b, n.then, vars)
			} else {
				writeNodes(b, n.els, vars)
			}
		case n.name != "":
			if value, ok := vars[n.name]; ok {
				b.WriteString(value)
			} else {
				b.WriteString(n.text)
			}
		default:
			b.WriteString(n.text)
		}
	}
}
