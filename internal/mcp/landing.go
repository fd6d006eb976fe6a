package mcp

import (
	"net/http"
	"strings"
)

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Document Q&amp;A Server</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 600px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2.5rem; box-shadow: 0 25px 50px rgba(0,0,0,0.4); }
  h1 { font-size: 1.75rem; margin-bottom: 0.5rem; color: #f8fafc; }
  .subtitle { color: #94a3b8; margin-bottom: 1.75rem; }
  .section { margin-bottom: 1.5rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin-bottom: 0.5rem; }
  pre { background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; line-height: 1.5; color: #e2e8f0; }
  code { font-family: "SF Mono", "Fira Code", "Fira Mono", Menlo, monospace; }
  .endpoint { font-family: "SF Mono", monospace; font-size: 0.9rem; color: #a5b4fc; }
</style>
</head>
<body>
<div class="card">
  <h1>Document Q&amp;A Server</h1>
  <p class="subtitle">Upload a document, then ask questions answered only from its text.</p>

  <div class="section">
    <div class="section-title">Try it</div>
    <pre><code>curl -F file=@manual.pdf http://localhost:8080/upload-pdf
curl -d '{"question":"What is the warranty period?"}' http://localhost:8080/ask</code></pre>
  </div>

  <div class="section">
    <div class="section-title">Endpoints</div>
    <p><span class="endpoint">POST /upload-pdf</span> &mdash; ingest a document</p>
    <p><span class="endpoint">POST /ask</span> &mdash; ask a question</p>
    <p><span class="endpoint">/mcp</span> &mdash; MCP Streamable HTTP (ask_document, search_document, index_status)</p>
    <p><span class="endpoint">GET /health</span> &mdash; health check</p>
  </div>
</div>
</body>
</html>`

type statusResponse struct {
	Status string `json:"status"`
}

// NewLandingHandler serves GET /. API clients get a JSON status; browsers
// asking for HTML get the landing page.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "text/html") {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(landingHTML))
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "API is running!"})
	}
}
