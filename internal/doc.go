// Package gatewaydash implements an operator dashboard kept in sync with a
// remote sensor gateway.
//
// # Architecture
//
// The service is structured into several key packages:
//   - api: REST client for the gateway
//   - dashboard: the four synchronized views and their lifecycle
//   - scheduler: interval pollers driving the polled views
//   - web: operator HTTP surface (page, JSON state, actions, recordings)
//   - grpc: health service reporting per-view sync status
//   - database: optional PostgreSQL/TimescaleDB archive of latest records
//   - config, metrics, models: shared plumbing
//
// Key Features
//
//   - Polling:
//     The sensor registry refreshes every 10 seconds and the latest
//     record panel every 2 seconds. A failed poll keeps the last good
//     data and shows an error until the next success.
//
//   - Pagination:
//     Analysis records are browsed ten per page. Every page change
//     passes through a loading state and only the newest response is
//     applied.
//
//   - Submission:
//     Sensor creates and updates are pessimistic. The registry is
//     refreshed once the gateway accepted the sensor, and a second
//     submit is refused while one is in flight.
//
// Example Usage
//
//	client, _ := api.NewGatewayClient("http://gateway:8080", logger)
//	d, _ := dashboard.New(client, dashboard.DefaultConfig(), logger)
//	_ = d.Start(ctx)
//	defer d.Stop()
//
//	srv, _ := web.NewServer(d, client, web.Config{CacheSize: 128}, logger, nil, nil)
//	http.ListenAndServe(":3000", srv)
//
// For more information about specific packages, see their respective
// documentation.
package gatewaydash
