// Standalone health responder, useful as a sidecar probe target when the
// main server sits behind a load balancer.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", ":7481", "listen address")
	flag.Parse()

	if err := run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "health server: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string) error {
	// the response never changes, so render it once
	body := []byte(fmt.Sprintf(`{"status":"ok","version":%q}`, version()))

	srv := &fasthttp.Server{
		Name:               "msgcore-health",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 4 * 1024,
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/healthz", "/health":
				ctx.SetContentType("application/json")
				ctx.SetBody(body)
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
	}
	return srv.ListenAndServe(addr)
}

func version() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return "dev"
}
