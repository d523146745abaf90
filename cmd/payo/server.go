package main

import (
	payo "github.com/payoapp/payo/pkg"
	"github.com/payoapp/payo/pkg/listener"
	"github.com/payoapp/payo/pkg/rates"
	"github.com/payoapp/payo/pkg/receivers"
	"github.com/payoapp/payo/pkg/store"
	"github.com/payoapp/payo/pkg/wallet"
	"github.com/payoapp/payo/pkg/webapi"
	"github.com/payoapp/payo/pkg/conductor"
)

func Server(conf payo.Config) {

	c := conductor.NewConductor(
		conductor.HookSignals(),
		conductor.Noisy(),
	)

	// Start the MessageBus Service
	bus := payo.NewMessageBus()
	c.Service("MessageBus", bus)

	// Set up all configured receivers (loggers, webhook callbacks)
	receivers.SetUpReceivers(c, bus, conf)

	// Setup a Store
	db, err := store.NewSQLiteStore(conf.Store.DBFile)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	// Start the Listener Manager with one listener per settlement network
	manager := listener.NewManager(conf, db, bus,
		listener.NewOnchainListener(conf, nil),
		listener.NewInstantListener(conf, nil),
		listener.NewTokenListener(conf, nil),
	)
	c.Service("Listener Manager", manager)

	api := payo.NewAPI(db, rates.NewService(conf, nil), wallet.NewGenerator(), bus, conf)

	// Start the Payment API
	p, err := webapi.NewWebAPI(conf, api)
	if err != nil {
		panic(err)
	}
	c.Service("Payment API", p)

	<-c.Start()
}
