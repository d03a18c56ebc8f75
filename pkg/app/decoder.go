package app

import (
	"context"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxbus"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/edge"
	"github.com/womat/debug"
)

// newDecoder creates the decoder of the input, publishing to the store.
func (app *App) newDecoder(in *source) (*auxbus.Decoder, error) {
	d, err := auxbus.New(app.config.AuxConfig(in.sampleRate), edge.NewStream(in.Source, in.initial), app.store)
	if err != nil {
		return nil, err
	}

	debug.InfoLog.Printf("decoding %d bit/s at %d Hz, %v", app.config.Decoder.BitRate, in.sampleRate, d.Timing())
	return d, nil
}

// decode runs the decoder until the input ends or ctx is cancelled.
//  It's designed to run in a separate go function.
func (app *App) decode(ctx context.Context, d *auxbus.Decoder) {
	defer close(app.done)

	if err := d.Run(ctx); err != nil {
		if ctx.Err() == nil {
			debug.ErrorLog.Printf("decoder stopped: %v", err)
		}
		return
	}

	debug.InfoLog.Printf("input complete, %d packets decoded", len(app.store.Payloads()))
}

// publish sends a committed frame to the mqtt broker.
func (app *App) publish(f auxbus.Frame) {
	debug.TraceLog.Printf("prepare mqtt message %v %v", app.config.MQTT.Topic, f.Kind())
	app.mqtt.PublishJSON(app.config.MQTT.Topic, f)
}
