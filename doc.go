// Package catalogkit is the subscription lifecycle engine for a multi-tenant
// catalog builder. The leaf building blocks live under pkg/ (event store,
// lifecycle graph, transaction plans, billing adapter, plan catalog) and the
// application-facing façade under svc/subscription.
package catalogkit
