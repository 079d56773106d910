// Package datatype describes the payload shape a publisher advertises.
package datatype

// Information carries a publisher's declared encoding and schema. It is
// stored verbatim per-publisher in the connection table and, depending on
// the subscriber's Share* configuration, echoed into registration
// snapshots.
type Information struct {
	Encoding       string
	TypeName       string
	DescriptorBlob []byte
}
