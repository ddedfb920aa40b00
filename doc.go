// Package breeze reconciles web purchases for apps that sell digital goods
// through the Breeze hosted payment page alongside the native store.
//
// A purchase starts as a pending intent registered with Engine.Initiate. Its
// outcome can reach the engine over two independent paths:
//
//   - a signed notification carried by the deep link the payment page
//     redirects to (Engine.HandleURL), verified with an ES256 trust anchor
//   - a periodic sweep that polls the backend for every pending intent
//
// Both paths are merged under a single lock and the application handler is
// invoked at most once per intent, outside that lock. Intents that are not
// confirmed within the pending timeout expire silently.
//
// # Usage
//
//	cfg, err := breeze.LoadConfigFromEnv()
//	if err != nil {
//		return err
//	}
//	backend := bhttp.NewBackendClient(cfg)
//	engine, err := breeze.New(
//		breeze.WithConfig(cfg),
//		breeze.WithInitiator(backend),
//		breeze.WithPoller(backend),
//		breeze.WithBrowserOpener(opener),
//		breeze.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	engine.SetPurchaseCallback(func(tx breeze.CompletedTransaction) {
//		grant(tx.ProductID)
//		engine.Finish(tx.ID)
//	})
//	intent, err := engine.Initiate(ctx, "coins_100", breeze.ProductTypeConsumable)
//
// Deep links received by the application are forwarded with
// engine.HandleURL(ctx, link). Links that are not payment returns are ignored.
package breeze
