package app

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxbus"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/export"
	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

type framesResp struct {
	Next   uint64         `json:"next"`   // index of the next frame, use it as since parameter
	Frames []auxbus.Frame `json:"frames"` // committed frames
}

type progressResp struct {
	Sample     uint64  `json:"sample"`     // last completely decoded sample
	SampleRate uint32  `json:"samplerate"` // sample rate of the input
	Seconds    float64 `json:"seconds"`    // sample as time since the start of the input
}

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	err := app.web.Listen(app.urlParsed.Host)
	debug.ErrorLog.Print(err)
}

// HandleFrames returns the committed frames, starting at the query parameter since.
func (app *App) HandleFrames() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request frames")

		since, err := strconv.ParseUint(ctx.Query("since", "0"), 10, 64)
		if err != nil {
			ctx.Status(http.StatusBadRequest)
			return ctx.JSON(fiber.Map{"error": "invalid parameter since"})
		}

		f, next := app.store.Frames(since)
		return ctx.JSON(framesResp{Next: next, Frames: f})
	}
}

// HandleMarkers returns the committed markers.
func (app *App) HandleMarkers() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request markers")

		return ctx.JSON(app.store.Markers())
	}
}

// HandleDump returns the data bytes of the committed frames as hex dump.
func (app *App) HandleDump() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request dump")

		f, _ := app.store.Frames(0)

		var b bytes.Buffer
		if err := export.Dump(&b, f); err != nil {
			return err
		}
		ctx.Type("txt")
		return ctx.SendString(b.String())
	}
}

// HandleProgress returns the last completely decoded sample.
func (app *App) HandleProgress() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request progress")

		resp := progressResp{Sample: app.store.Progress()}
		if app.input != nil {
			resp.SampleRate = app.input.sampleRate
		}
		if resp.SampleRate > 0 {
			resp.Seconds = float64(resp.Sample) / float64(resp.SampleRate)
		}
		return ctx.JSON(resp)
	}
}
