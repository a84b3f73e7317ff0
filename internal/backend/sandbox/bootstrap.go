package sandbox

import (
	"fmt"
	"time"

	"sceneforge/internal/types"
)

// readyExpr is polled by the host until the sandbox reports both conditions:
// the build entry function exists and the compiler finished initializing.
const readyExpr = `() => typeof window.__sceneforgeBuild === 'function' && window.__compilerReady === true`

// bootstrapScript loads the compiler bundle from the primary source, falling
// back through mirrors in order with a bounded timeout per source, then
// installs the build entry function. If every source fails the load-failed
// flag is set and the host switches to the fallback transform.
func bootstrapScript(compilerURLs []string, perSourceTimeout time.Duration, aliases map[string]string) string {
	return fmt.Sprintf(`() => {
  const sources = %s;
  const aliases = %s;
  const perSourceTimeout = %d;
  window.__compilerReady = false;
  window.__compilerLoadFailed = false;

  const tryLoad = (i) => {
    if (i >= sources.length) {
      window.__compilerLoadFailed = true;
      return;
    }
    const script = document.createElement('script');
    const timer = setTimeout(() => {
      script.remove();
      tryLoad(i + 1);
    }, perSourceTimeout);
    script.onload = async () => {
      clearTimeout(timer);
      try {
        await esbuild.initialize({
          wasmURL: sources[i].replace(/lib\/browser[^/]*$/, 'esbuild.wasm'),
        });
        window.__compilerReady = true;
      } catch (e) {
        tryLoad(i + 1);
      }
    };
    script.onerror = () => {
      clearTimeout(timer);
      tryLoad(i + 1);
    };
    script.src = sources[i];
    document.head.appendChild(script);
  };

  window.__sceneforgeBuild = async (reqJSON) => {
    const req = JSON.parse(reqJSON);
    const started = performance.now();
    const virtualFiles = {
      name: 'sceneforge-virtual-files',
      setup(build) {
        build.onResolve({ filter: /.*/ }, (args) => {
          if (aliases[args.path]) return { path: aliases[args.path], external: true };
          if (req.extraFiles && req.extraFiles[args.path]) return { path: args.path, namespace: 'virtual' };
          return undefined;
        });
        build.onLoad({ filter: /.*/, namespace: 'virtual' }, (args) => ({
          contents: req.extraFiles[args.path],
          loader: req.loader,
        }));
      },
    };
    try {
      const result = await esbuild.build({
        stdin: { contents: req.entryCode, loader: req.loader, sourcefile: req.entryFile },
        bundle: true,
        write: false,
        platform: 'browser',
        format: 'iife',
        sourcemap: 'inline',
        jsx: req.jsxRuntimeMode === 'automatic' ? 'automatic' : 'transform',
        define: req.defines || {},
        minify: !!req.minify,
        plugins: [virtualFiles],
      });
      window.%s(JSON.stringify({
        success: true,
        code: result.outputFiles[0].text,
        warnings: result.warnings.map((w) => w.text),
        errors: [],
        durationMs: Math.round(performance.now() - started),
      }));
    } catch (e) {
      window.%s(JSON.stringify({
        success: false,
        code: '',
        warnings: [],
        errors: (e.errors && e.errors.length ? e.errors : [{ text: String(e) }]).map((x) => x.text),
        durationMs: Math.round(performance.now() - started),
      }));
    }
  };

  tryLoad(0);
}`,
		mustJSON(compilerURLs),
		mustJSON(aliases),
		perSourceTimeout.Milliseconds(),
		resultCallbackName,
		resultCallbackName,
	)
}

// sandboxRequest is the JSON shape crossing the page boundary.
type sandboxRequest struct {
	EntryCode      string            `json:"entryCode"`
	EntryFile      string            `json:"entryFile"`
	Loader         string            `json:"loader"`
	ExtraFiles     map[string]string `json:"extraFiles,omitempty"`
	JSXRuntimeMode string            `json:"jsxRuntimeMode"`
	Defines        map[string]string `json:"defines,omitempty"`
	Minify         bool              `json:"minify"`
}

// sandboxResponse is the JSON shape the page posts back.
type sandboxResponse struct {
	Success    bool     `json:"success"`
	Code       string   `json:"code"`
	Warnings   []string `json:"warnings"`
	Errors     []string `json:"errors"`
	DurationMs int      `json:"durationMs"`
}

// loaderFor maps a framework dialect to the compiler loader name.
func loaderFor(framework types.Framework) string {
	switch framework.CodeLanguage() {
	case "tsx":
		return "tsx"
	case "typescript":
		return "ts"
	default:
		return "js"
	}
}
