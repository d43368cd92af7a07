package browser

import (
	"encoding/json"
	"fmt"
)

// Results of activateScript.
const (
	activateClicked  = "clicked"
	activateHidden   = "hidden"
	activateDisabled = "disabled"
	activateNone     = "none"
)

const (
	scrollHeightScript   = `Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)`
	scrollToBottomScript = `window.scrollTo(0, document.body ? document.body.scrollHeight : document.documentElement.scrollHeight)`
)

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func countScript(selector string) string {
	return fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
}

func existsScript(selector string) string {
	return fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector))
}

func scrollByScript(dy int) string {
	return fmt.Sprintf(`window.scrollBy(0, %d)`, dy)
}

// activateScript finds the first element for m and clicks it when it is
// visible and enabled. It evaluates to one of the activate* results.
func activateScript(m Matcher) string {
	return fmt.Sprintf(`(() => {
  const kind = %s, role = %s, selector = %s, pattern = %s;
  const re = pattern ? new RegExp(pattern, "i") : null;
  const text = el => (el.innerText || el.textContent || "").trim();
  const label = el => (el.getAttribute("aria-label") || text(el) || el.value || "").trim();
  let nodes = [];
  if (kind === "role") {
    const q = role === "button"
      ? "button, [role=button], input[type=button], input[type=submit]"
      : "[role=" + role + "]";
    nodes = Array.from(document.querySelectorAll(q)).filter(el => !re || re.test(label(el)));
  } else if (kind === "text") {
    nodes = Array.from(document.querySelectorAll("body *")).filter(el =>
      re && re.test(text(el)) && !Array.from(el.children).some(c => re.test(text(c))));
  } else {
    nodes = Array.from(document.querySelectorAll(selector)).filter(el => !re || re.test(text(el)));
  }
  if (nodes.length === 0) return %q;
  const el = nodes[0];
  const style = window.getComputedStyle(el);
  const rect = el.getBoundingClientRect();
  if (style.display === "none" || style.visibility === "hidden" || rect.width === 0 || rect.height === 0) return %q;
  if (el.disabled || el.getAttribute("aria-disabled") === "true") return %q;
  el.scrollIntoView({block: "center"});
  el.click();
  return %q;
})()`,
		jsString(string(m.Kind)), jsString(m.Role), jsString(m.Selector), jsString(m.Pattern),
		activateNone, activateHidden, activateDisabled, activateClicked,
	)
}
