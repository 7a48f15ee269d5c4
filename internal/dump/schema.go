package dump

// ColumnKind is the decoded type of a column
type ColumnKind int

const (
	KindString ColumnKind = iota
	KindInt
	KindUint
	KindFloat
)

// String returns the kind name
func (k ColumnKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// Column declares one typed column of a table
type Column struct {
	Name     string
	Kind     ColumnKind
	Required bool
}

// Schema declares the typed columns of a known table.
// Columns present in the file but absent from the schema decode as strings.
type Schema struct {
	Table   string
	Columns []Column
}

func (s *Schema) column(name string) (Column, bool) {
	if s == nil {
		return Column{}, false
	}
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Well-known table names
const (
	TableNodes          = "NODES"
	TablePorts          = "PORTS"
	TableLinks          = "LINKS"
	TableNodesInfo      = "NODES_INFO"
	TablePMInfo         = "PM_INFO"
	TablePhyBER         = "PHY_BER"
	TableCCPortCounters = "CC_PORT_COUNTERS"
	TableCableInfo      = "CABLE_INFO"
	TableTempSensing    = "TEMP_SENSING"
	TablePowerSupplies  = "POWER_SUPPLIES"
	TableTelemetry      = "TELEMETRY"
)

func str(name string) Column { return Column{Name: name, Kind: KindString} }
func reqStr(name string) Column { return Column{Name: name, Kind: KindString, Required: true} }
func num(name string) Column { return Column{Name: name, Kind: KindInt} }
func reqNum(name string) Column { return Column{Name: name, Kind: KindInt, Required: true} }
func ctr(name string) Column { return Column{Name: name, Kind: KindUint} }
func flt(name string) Column { return Column{Name: name, Kind: KindFloat} }

var schemas = map[string]*Schema{
	TableNodes: {Table: TableNodes, Columns: []Column{
		str("NodeDesc"), num("NumPorts"), num("NodeType"), reqStr("NodeGUID"),
		str("SystemImageGUID"), num("DeviceID"), num("VendorID"),
	}},
	TablePorts: {Table: TablePorts, Columns: []Column{
		reqStr("NodeGuid"), reqNum("PortNum"), str("PortGuid"), num("LID"),
		num("PortState"), num("PortPhyState"),
		num("LinkWidthActv"), num("LinkSpeedActv"), num("LinkWidthSup"), num("LinkSpeedSup"),
	}},
	TableLinks: {Table: TableLinks, Columns: []Column{
		reqStr("NodeGuid1"), reqNum("PortNum1"), reqStr("NodeGuid2"), reqNum("PortNum2"),
	}},
	TableNodesInfo: {Table: TableNodesInfo, Columns: []Column{
		reqStr("NodeGuid"), num("FW_Major"), num("FW_Minor"), num("FW_SubMinor"),
		str("PSID"), num("DeviceID"),
	}},
	TablePMInfo: {Table: TablePMInfo, Columns: []Column{
		reqStr("NodeGuid"), reqNum("PortNum"),
		ctr("SymbolErrorCounter"), ctr("LinkErrorRecoveryCounter"), ctr("LinkDownedCounter"),
		ctr("PortRcvErrors"), ctr("PortRcvRemotePhysicalErrors"), ctr("PortXmitDiscards"),
		ctr("LocalLinkIntegrityErrors"), ctr("ExcessiveBufferOverrunErrors"),
		ctr("PortXmitWait"), ctr("PortXmitData"), ctr("PortRcvData"),
	}},
	TablePhyBER: {Table: TablePhyBER, Columns: []Column{
		reqStr("NodeGuid"), reqNum("PortNum"),
		ctr("RawBERMantissa"), num("RawBERExponent"),
		ctr("EffBERMantissa"), num("EffBERExponent"),
		ctr("SymBERMantissa"), num("SymBERExponent"),
		ctr("ErrorEvents"),
	}},
	TableCCPortCounters: {Table: TableCCPortCounters, Columns: []Column{
		reqStr("NodeGuid"), reqNum("PortNum"), ctr("ECNMarked"), ctr("CreditTimeouts"),
	}},
	TableCableInfo: {Table: TableCableInfo, Columns: []Column{
		reqStr("NodeGuid"), reqNum("PortNum"), str("Vendor"), str("PN"), str("SN"),
		flt("Temperature"), flt("RxPower"), flt("TxPower"), flt("SupplyVoltage"),
	}},
	TableTempSensing: {Table: TableTempSensing, Columns: []Column{
		reqStr("NodeGuid"), num("SensorIndex"), flt("Temperature"),
	}},
	TablePowerSupplies: {Table: TablePowerSupplies, Columns: []Column{
		reqStr("NodeGuid"), reqNum("PSUIndex"), num("Present"), num("DCOk"), num("ACOk"),
		flt("PowerWatts"), flt("MaxWatts"),
	}},
	TableTelemetry: {Table: TableTelemetry, Columns: []Column{
		reqStr("node_guid"), reqNum("port_num"),
		flt("temperature_c"), flt("rx_power_mw"), flt("latency_us"),
	}},
}

// SchemaFor returns the declared schema of a well-known table
func SchemaFor(table string) (*Schema, bool) {
	s, ok := schemas[table]
	return s, ok
}
