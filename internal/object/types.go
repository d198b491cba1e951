package object

import "strconv"

// Type is the object type tag carried in every object header.
type Type uint32

const (
	TypeUnknown                   Type = 0
	TypeCANMessage                Type = 1
	TypeCANError                  Type = 2
	TypeCANOverload               Type = 3
	TypeCANStatistic              Type = 4
	TypeAppTrigger                Type = 5
	TypeEnvInteger                Type = 6
	TypeEnvDouble                 Type = 7
	TypeEnvString                 Type = 8
	TypeEnvData                   Type = 9
	TypeLogContainer              Type = 10
	TypeLINMessage                Type = 11
	TypeLINCRCError               Type = 12
	TypeLINDLCInfo                Type = 13
	TypeLINReceiveError           Type = 14
	TypeLINSendError              Type = 15
	TypeLINSlaveTimeout           Type = 16
	TypeLINSchedulerModeChange    Type = 17
	TypeLINSyncError              Type = 18
	TypeLINBaudrate               Type = 19
	TypeLINSleep                  Type = 20
	TypeLINWakeup                 Type = 21
	TypeMOSTSpy                   Type = 22
	TypeMOSTCtrl                  Type = 23
	TypeMOSTLightLock             Type = 24
	TypeMOSTStatistic             Type = 25
	TypeReserved26                Type = 26
	TypeReserved27                Type = 27
	TypeReserved28                Type = 28
	TypeFlexRayData               Type = 29
	TypeFlexRaySync               Type = 30
	TypeCANDriverError            Type = 31
	TypeMOSTPkt                   Type = 32
	TypeMOSTPkt2                  Type = 33
	TypeMOSTHWMode                Type = 34
	TypeMOSTReg                   Type = 35
	TypeMOSTGenReg                Type = 36
	TypeMOSTNetState              Type = 37
	TypeMOSTDataLost              Type = 38
	TypeMOSTTrigger               Type = 39
	TypeFlexRayCycle              Type = 40
	TypeFlexRayMessage            Type = 41
	TypeLINChecksumInfo           Type = 42
	TypeLINSpikeEvent             Type = 43
	TypeCANDriverSync             Type = 44
	TypeFlexRayStatus             Type = 45
	TypeGPSEvent                  Type = 46
	TypeFRError                   Type = 47
	TypeFRStatus                  Type = 48
	TypeFRStartCycle              Type = 49
	TypeFRRcvMessage              Type = 50
	TypeRealtimeClock             Type = 51
	TypeReserved52                Type = 52
	TypeReserved53                Type = 53
	TypeLINStatistic              Type = 54
	TypeJ1708Message              Type = 55
	TypeJ1708VirtualMsg           Type = 56
	TypeLINMessage2               Type = 57
	TypeLINSendError2             Type = 58
	TypeLINSyncError2             Type = 59
	TypeLINCRCError2              Type = 60
	TypeLINReceiveError2          Type = 61
	TypeLINWakeup2                Type = 62
	TypeLINSpikeEvent2            Type = 63
	TypeLINLongDomSig             Type = 64
	TypeAppText                   Type = 65
	TypeFRRcvMessageEx            Type = 66
	TypeMOSTStatisticEx           Type = 67
	TypeMOSTTxLight               Type = 68
	TypeMOSTAllocTab              Type = 69
	TypeMOSTStress                Type = 70
	TypeEthernetFrame             Type = 71
	TypeSysVariable               Type = 72
	TypeCANErrorExt               Type = 73
	TypeCANDriverErrorExt         Type = 74
	TypeLINLongDomSig2            Type = 75
	TypeMOST150Message            Type = 76
	TypeMOST150Pkt                Type = 77
	TypeMOSTEthernetPkt           Type = 78
	TypeMOST150MessageFragment    Type = 79
	TypeMOST150PktFragment        Type = 80
	TypeMOSTEthernetPktFragment   Type = 81
	TypeMOSTSystemEvent           Type = 82
	TypeMOST150AllocTab           Type = 83
	TypeMOST50Message             Type = 84
	TypeMOST50Pkt                 Type = 85
	TypeCANMessage2               Type = 86
	TypeLINUnexpectedWakeup       Type = 87
	TypeLINShortOrSlowResponse    Type = 88
	TypeLINDisturbanceEvent       Type = 89
	TypeSerialEvent               Type = 90
	TypeOverrunError              Type = 91
	TypeEventComment              Type = 92
	TypeWLANFrame                 Type = 93
	TypeWLANStatistic             Type = 94
	TypeMOSTECL                   Type = 95
	TypeGlobalMarker              Type = 96
	TypeAFDXFrame                 Type = 97
	TypeAFDXStatistic             Type = 98
	TypeKLineStatusEvent          Type = 99
	TypeCANFDMessage              Type = 100
	TypeCANFDMessage64            Type = 101
	TypeEthernetRxError           Type = 102
	TypeEthernetStatus            Type = 103
	TypeCANFDError64              Type = 104
	TypeLINShortOrSlowResponse2   Type = 105
	TypeAFDXStatus                Type = 106
	TypeAFDXBusStatistic          Type = 107
	TypeReserved108               Type = 108
	TypeAFDXErrorEvent            Type = 109
	TypeA429Error                 Type = 110
	TypeA429Status                Type = 111
	TypeA429BusStatistic          Type = 112
	TypeA429Message               Type = 113
	TypeEthernetStatistic         Type = 114
	TypeRestorePointContainer     Type = 115
	TypeReserved116               Type = 116
	TypeReserved117               Type = 117
	TypeTestStructure             Type = 118
	TypeDiagRequestInterpretation Type = 119
	TypeEthernetFrameEx           Type = 120
	TypeEthernetFrameForwarded    Type = 121
	TypeEthernetErrorEx           Type = 122
	TypeEthernetErrorForwarded    Type = 123
	TypeFunctionBus               Type = 124
	TypeDataLostBegin             Type = 125
	TypeDataLostEnd               Type = 126
	TypeWaterMarkEvent            Type = 127
	TypeTriggerCondition          Type = 128
	TypeCANSettingChanged         Type = 129
	TypeDistributedObjectMember   Type = 130
	TypeAttributeEvent            Type = 131
)

// MaxType is the highest tag in the catalog.
const MaxType = TypeAttributeEvent

var typeNames = [...]string{
	0:   "UNKNOWN",
	1:   "CAN_MESSAGE",
	2:   "CAN_ERROR",
	3:   "CAN_OVERLOAD",
	4:   "CAN_STATISTIC",
	5:   "APP_TRIGGER",
	6:   "ENV_INTEGER",
	7:   "ENV_DOUBLE",
	8:   "ENV_STRING",
	9:   "ENV_DATA",
	10:  "LOG_CONTAINER",
	11:  "LIN_MESSAGE",
	12:  "LIN_CRC_ERROR",
	13:  "LIN_DLC_INFO",
	14:  "LIN_RCV_ERROR",
	15:  "LIN_SND_ERROR",
	16:  "LIN_SLV_TIMEOUT",
	17:  "LIN_SCHED_MODCH",
	18:  "LIN_SYN_ERROR",
	19:  "LIN_BAUDRATE",
	20:  "LIN_SLEEP",
	21:  "LIN_WAKEUP",
	22:  "MOST_SPY",
	23:  "MOST_CTRL",
	24:  "MOST_LIGHTLOCK",
	25:  "MOST_STATISTIC",
	26:  "RESERVED_26",
	27:  "RESERVED_27",
	28:  "RESERVED_28",
	29:  "FLEXRAY_DATA",
	30:  "FLEXRAY_SYNC",
	31:  "CAN_DRIVER_ERROR",
	32:  "MOST_PKT",
	33:  "MOST_PKT2",
	34:  "MOST_HWMODE",
	35:  "MOST_REG",
	36:  "MOST_GENREG",
	37:  "MOST_NETSTATE",
	38:  "MOST_DATALOST",
	39:  "MOST_TRIGGER",
	40:  "FLEXRAY_CYCLE",
	41:  "FLEXRAY_MESSAGE",
	42:  "LIN_CHECKSUM_INFO",
	43:  "LIN_SPIKE_EVENT",
	44:  "CAN_DRIVER_SYNC",
	45:  "FLEXRAY_STATUS",
	46:  "GPS_EVENT",
	47:  "FR_ERROR",
	48:  "FR_STATUS",
	49:  "FR_STARTCYCLE",
	50:  "FR_RCVMESSAGE",
	51:  "REALTIMECLOCK",
	52:  "RESERVED_52",
	53:  "RESERVED_53",
	54:  "LIN_STATISTIC",
	55:  "J1708_MESSAGE",
	56:  "J1708_VIRTUAL_MSG",
	57:  "LIN_MESSAGE2",
	58:  "LIN_SND_ERROR2",
	59:  "LIN_SYN_ERROR2",
	60:  "LIN_CRC_ERROR2",
	61:  "LIN_RCV_ERROR2",
	62:  "LIN_WAKEUP2",
	63:  "LIN_SPIKE_EVENT2",
	64:  "LIN_LONG_DOM_SIG",
	65:  "APP_TEXT",
	66:  "FR_RCVMESSAGE_EX",
	67:  "MOST_STATISTICEX",
	68:  "MOST_TXLIGHT",
	69:  "MOST_ALLOCTAB",
	70:  "MOST_STRESS",
	71:  "ETHERNET_FRAME",
	72:  "SYS_VARIABLE",
	73:  "CAN_ERROR_EXT",
	74:  "CAN_DRIVER_ERROR_EXT",
	75:  "LIN_LONG_DOM_SIG2",
	76:  "MOST_150_MESSAGE",
	77:  "MOST_150_PKT",
	78:  "MOST_ETHERNET_PKT",
	79:  "MOST_150_MESSAGE_FRAGMENT",
	80:  "MOST_150_PKT_FRAGMENT",
	81:  "MOST_ETHERNET_PKT_FRAGMENT",
	82:  "MOST_SYSTEM_EVENT",
	83:  "MOST_150_ALLOCTAB",
	84:  "MOST_50_MESSAGE",
	85:  "MOST_50_PKT",
	86:  "CAN_MESSAGE2",
	87:  "LIN_UNEXPECTED_WAKEUP",
	88:  "LIN_SHORT_OR_SLOW_RESPONSE",
	89:  "LIN_DISTURBANCE_EVENT",
	90:  "SERIAL_EVENT",
	91:  "OVERRUN_ERROR",
	92:  "EVENT_COMMENT",
	93:  "WLAN_FRAME",
	94:  "WLAN_STATISTIC",
	95:  "MOST_ECL",
	96:  "GLOBAL_MARKER",
	97:  "AFDX_FRAME",
	98:  "AFDX_STATISTIC",
	99:  "KLINE_STATUSEVENT",
	100: "CAN_FD_MESSAGE",
	101: "CAN_FD_MESSAGE_64",
	102: "ETHERNET_RX_ERROR",
	103: "ETHERNET_STATUS",
	104: "CAN_FD_ERROR_64",
	105: "LIN_SHORT_OR_SLOW_RESPONSE2",
	106: "AFDX_STATUS",
	107: "AFDX_BUS_STATISTIC",
	108: "RESERVED_108",
	109: "AFDX_ERROR_EVENT",
	110: "A429_ERROR",
	111: "A429_STATUS",
	112: "A429_BUS_STATISTIC",
	113: "A429_MESSAGE",
	114: "ETHERNET_STATISTIC",
	115: "RESTORE_POINT_CONTAINER",
	116: "RESERVED_116",
	117: "RESERVED_117",
	118: "TEST_STRUCTURE",
	119: "DIAG_REQUEST_INTERPRETATION",
	120: "ETHERNET_FRAME_EX",
	121: "ETHERNET_FRAME_FORWARDED",
	122: "ETHERNET_ERROR_EX",
	123: "ETHERNET_ERROR_FORWARDED",
	124: "FUNCTION_BUS",
	125: "DATA_LOST_BEGIN",
	126: "DATA_LOST_END",
	127: "WATER_MARK_EVENT",
	128: "TRIGGER_CONDITION",
	129: "CAN_SETTING_CHANGED",
	130: "DISTRIBUTED_OBJECT_MEMBER",
	131: "ATTRIBUTE_EVENT",
}

func (t Type) String() string {
	if t <= MaxType {
		return typeNames[t]
	}
	return "TYPE_" + strconv.FormatUint(uint64(t), 10)
}

// Known reports whether t is a catalogued, non-reserved tag.
func (t Type) Known() bool {
	switch t {
	case TypeUnknown, TypeReserved26, TypeReserved27, TypeReserved28,
		TypeReserved52, TypeReserved53, TypeReserved108,
		TypeReserved116, TypeReserved117:
		return false
	}
	return t <= MaxType
}

// ParseType resolves a name as printed by String back to its tag.
func ParseType(name string) (Type, bool) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), true
		}
	}
	return 0, false
}
