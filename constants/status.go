package constants

// DocumentStatus is the lifecycle stage of a page set, derived from the files on disk.
type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "PENDING"   // no sidecar yet
	DocumentStatusExtracted DocumentStatus = "XML_OK"    // stage (a) XML written
	DocumentStatusNamed     DocumentStatus = "NAMED"     // JSON record written
	DocumentStatusAssembled DocumentStatus = "ASSEMBLED" // done/<name>.pdf exists
)
