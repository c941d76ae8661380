package constants

import "time"

const (
	ServiceName = "beacon-server"

	// Reserved payload fields the pipeline reads or writes.
	FieldEvent      = "event"
	FieldPrincipal  = "principal"
	FieldDistinctID = "distinct_id"
	FieldUserID     = "$user_id"
	FieldIPAddr     = "ip_addr"
	FieldUserAgent  = "user_agent"
	FieldCanisterID = "canister_id"
	FieldOS         = "$os"
	FieldDevice     = "device"
	FieldBTCBalance = "btc_balance_e8s"
	FieldSats       = "sats_balance"
	FieldIsCreator  = "is_creator"
	FieldCity       = "city"
	FieldRegion     = "region"
	FieldCountry    = "country"
	FieldTimezone   = "timezone"
	FieldTime       = "time"
	FieldInsertID   = "$insert_id"

	DefaultEventName = "unknown"
	DefaultOS        = "UNKNOWN"

	// Warehouse rows carry the tracking event name with this prefix so the
	// two sinks can be joined on event name downstream.
	WarehouseEventPrefix = "mp_"

	// Attributes attached to every stream sink message.
	StreamAttrEventType = "event_type"
	StreamAttrSource    = "source"
	StreamSourceValue   = "analytics_server"

	SentrySignatureHeader = "sentry-hook-signature"
)

const (
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultProviderTimeout = 5 * time.Second
	DefaultGeoCacheTTL     = 6 * time.Hour

	KafkaBatchTimeout = 100 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second

	ShutdownTimeout = 30 * time.Second

	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)
