package view

import (
	"bytes"
	"html/template"
)

// JoinPageData provides the dynamic fields required by the join template.
type JoinPageData struct {
	Title string
	Token string
}

var joinPageTmpl = template.Must(template.New("join_page").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{if .Title}}{{.Title}}{{else}}Join the group{{end}}</title>
	<style>
		:root {
			--bg: #090a0f;
			--card: rgba(255, 255, 255, 0.05);
			--border: rgba(255, 255, 255, 0.15);
			--text: #e7ecff;
			--muted: #a1acc5;
			--accent: #7dd3fc;
			--accent-strong: #38bdf8;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		* { box-sizing: border-box; }
		body {
			margin: 0;
			min-height: 100vh;
			display: flex;
			align-items: center;
			justify-content: center;
			background: radial-gradient(circle at 20% 20%, #111827, #030712 60%);
			color: var(--text);
		}
		.card {
			background: var(--card);
			border: 1px solid var(--border);
			border-radius: 18px;
			padding: 32px;
			width: min(460px, 92vw);
			box-shadow: 0 45px 100px rgba(0,0,0,0.35);
			backdrop-filter: blur(18px);
			text-align: center;
		}
		h1 { font-size: 1.4rem; margin-bottom: 6px; }
		p { color: var(--muted); margin-top: 0; }
		a.button {
			display: inline-flex;
			align-items: center;
			justify-content: center;
			margin-top: 20px;
			padding: 12px 28px;
			border-radius: 12px;
			background: linear-gradient(135deg, var(--accent), var(--accent-strong));
			color: #04121f;
			font-weight: 600;
			text-decoration: none;
		}
		.error { color: #fca5a5; margin-top: 20px; display: none; }
		.spinner {
			margin: 24px auto 0;
			width: 28px;
			height: 28px;
			border: 3px solid var(--border);
			border-top-color: var(--accent-strong);
			border-radius: 50%;
			animation: spin 0.8s linear infinite;
		}
		@keyframes spin { to { transform: rotate(360deg); } }
	</style>
</head>
<body>
	<div class="card">
		<h1>{{.Title}}</h1>
		<p>Fetching your invite&hellip;</p>
		<div class="spinner" id="spinner"></div>
		<a class="button" id="join" style="display:none" href="#">Open Group</a>
		<p class="error" id="error">This link is invalid or has expired.</p>
	</div>
	<script>
		(function () {
			var token = {{.Token}};
			fetch('/redeem?token=' + encodeURIComponent(token))
				.then(function (resp) {
					if (!resp.ok) { throw new Error('not found'); }
					return resp.json();
				})
				.then(function (data) {
					document.getElementById('spinner').style.display = 'none';
					var btn = document.getElementById('join');
					btn.href = data.url;
					btn.style.display = 'inline-flex';
					window.location.href = data.url;
				})
				.catch(function () {
					document.getElementById('spinner').style.display = 'none';
					document.getElementById('error').style.display = 'block';
				});
		})();
	</script>
</body>
</html>
`))

// RenderJoinPage renders the join web-app page to a string.
func RenderJoinPage(data JoinPageData) (string, error) {
	var buf bytes.Buffer
	if err := joinPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
