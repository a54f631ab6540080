/*
	Package def holds the data model shared across the platform: digests,
	CAS objects, image manifests, build specs, capsule configuration,
	cluster/node records, service endpoints, snapshots, and quotas.

	Types in this package are mostly plain data; the few operations on
	them (fingerprinting, digest parsing and printing, capacity checks)
	are methods declared in the same file as the type they operate on.
*/
package def
