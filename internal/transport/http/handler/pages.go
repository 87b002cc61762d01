package handler

import (
	"html/template"
	"net/http"
)

// PageHandler serves the minimal HTML forms behind the emailed links.
// Each page posts the embedded token plus a user-supplied field to the
// corresponding JSON endpoint.
type PageHandler struct{}

func NewPageHandler() *PageHandler { return &PageHandler{} }

var confirmPage = template.Must(template.New("confirm").Parse(`<html>
<body>
  <form action="/auth/signup/confirm" method="post" id="tokenForm">
    <label for="email">Email:</label>
    <input type="text" name="email" id="email">
    <input type="hidden" name="token" id="token" value="{{.Token}}">
    <input type="button" onclick="submitForm('/auth/signup/confirm', {email: email.value, token: token.value})" value="Confirm">
  </form>
  <label id="statusLabel"></label>
</body>
<script>
function submitForm(url, body) {
  fetch(url, {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify(body),
  }).then(function(res) { return res.json(); }).then(function(data) {
    document.getElementById("statusLabel").textContent = data.message || data.error;
  });
}
</script>
</html>`))

var resetPage = template.Must(template.New("reset").Parse(`<html>
<body>
  <form action="/auth/change_password" method="post" id="tokenForm">
    <label for="new_password">New password:</label>
    <input type="password" name="new_password" id="new_password">
    <input type="hidden" name="reset_token" id="reset_token" value="{{.Token}}">
    <input type="button" onclick="submitForm('/auth/change_password', {reset_token: reset_token.value, new_password: new_password.value})" value="Change password">
  </form>
  <label id="statusLabel"></label>
</body>
<script>
function submitForm(url, body) {
  fetch(url, {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify(body),
  }).then(function(res) { return res.json(); }).then(function(data) {
    document.getElementById("statusLabel").textContent = data.message || data.error;
  });
}
</script>
</html>`))

func (h *PageHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, confirmPage)
}

func (h *PageHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, resetPage)
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, page *template.Template) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = page.Execute(w, struct{ Token string }{Token: token})
}
