package app

import (
	"context"
	"net/url"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/app/config"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxbus"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/mqtt"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/results"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	// and makes it easier to get params out of e.g.
	// url: https://0.0.0.0:7844/?minTls=1.2&bodyLimit=50MB
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// input is the opened line source
	input *source

	// store holds the committed frames and markers of the decoder
	store *results.Store

	// cancel stops the decoder
	cancel context.CancelFunc
	// done is closed when the decoder has returned
	done chan struct{}
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	return &App{
		config:    config,
		urlParsed: u,

		web:   fiber.New(),
		mqtt:  mqtt.New(),
		store: results.New(config.Results.Limit),

		done: make(chan struct{}),
	}, nil
}

// Run starts the application.
func (app *App) Run() error {
	d, err := app.init()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	go app.mqtt.Service()
	go app.runWebServer()
	go app.decode(ctx, d)

	return nil
}

// init opens the input, the decoder and the mqtt broker.
func (app *App) init() (d *auxbus.Decoder, err error) {
	if app.input, err = openSource(app.config.Input); err != nil {
		debug.ErrorLog.Printf("can't open input: %v", err)
		return nil, err
	}

	if d, err = app.newDecoder(app.input); err != nil {
		debug.ErrorLog.Printf("can't start decoder: %v", err)
		return nil, err
	}

	if err = app.mqtt.Connect(app.config.MQTT.Connection, app.config.MQTT.ClientID); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return nil, err
	}
	if app.mqtt.Connected() {
		app.store.Subscribe(app.publish)
	}

	// initDefaultRoutes should be always called last because it may access things like app.store
	// which must be initialized before
	app.initDefaultRoutes()

	return d, nil
}

// Close stops the decoder and releases the input and the mqtt broker.
func (app *App) Close() error {
	if app.cancel != nil {
		app.cancel()
		// closing the input unblocks a decoder waiting for a serial adapter
		if app.input != nil {
			_ = app.input.Close()
		}
		<-app.done
	} else if app.input != nil {
		_ = app.input.Close()
	}

	if app.mqtt != nil {
		_ = app.mqtt.Disconnect()
	}
	if app.web != nil {
		_ = app.web.Shutdown()
	}
	return nil
}
