// Package errors implements the FloorLink error taxonomy.
//
// Errors are classified into five classes matching how they are handled:
//
//   - authentication: credential failures at connect time; the attempted
//     connection is refused, the process is unaffected
//   - protocol: malformed or unknown inbound messages; reported to the
//     sender, the connection stays open
//   - validation: well-formed commands with missing or invalid fields;
//     reported with a specific error code, the connection stays open
//   - delivery: transport write failures; recovered per-connection via an
//     error counter and eviction past a threshold
//   - internal: unexpected faults; logged, never propagated to unrelated
//     connections
//
// Use the Wrap* helpers to attach class, component and operation context:
//
//	if err := conn.Write(data); err != nil {
//	    return errors.WrapDelivery(err, "Dispatcher", "SendPersonal", "write frame")
//	}
package errors
