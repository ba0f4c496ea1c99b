package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/marquesl99/chamada-visual/apps/api/echo"
	"github.com/marquesl99/chamada-visual/core"
	"github.com/marquesl99/chamada-visual/core/call"
	"github.com/marquesl99/chamada-visual/core/student"
	sophiadir "github.com/marquesl99/chamada-visual/services/directory/sophia"
	logsvc "github.com/marquesl99/chamada-visual/services/logger"
	fsstore "github.com/marquesl99/chamada-visual/storage/callstore/firestore"
	inmemstore "github.com/marquesl99/chamada-visual/storage/callstore/inmem"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	var logger core.Logger
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	if conf.Debug {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, conf)
	}
	logger.Enable(!conf.Debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up the call store: Firestore when configured, in-memory otherwise
	var store call.Store
	if conf.Firestore.Project != "" {
		fs, err := fsstore.Open(ctx, conf, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening firestore store: %v", err), err)
		}
		defer func() { _ = fs.Close() }()
		store = fs
	} else {
		logger.Warn("firestoreProject not set; using the in-memory call store")
		store, _ = inmemstore.Open()
	}

	// set up services
	studentSvc := student.NewService(sophiadir.NewClient(conf, logger), logger)
	callSvc := call.NewService(store, logger, conf)
	callSvc.StartSweep(ctx)

	exchanger, err := echoapi.NewGoogleExchanger(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up google sign-in: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			StudentSvc: studentSvc,
			CallSvc:    callSvc,
			Exchanger:  exchanger,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		cancel() // stop the sweep and the store subscriptions

		// give outstanding requests a deadline for completion
		sdCtx, sdCancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer sdCancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(sdCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
