package store

import "fmt"

// Keyspace layout. Timestamps are zero-padded nanoseconds plus a process
// sequence so keys sort by insertion time even when stamps collide.
//
//	user:<id>                      user record
//	user:<uid>:conv:<cid>          membership marker (value: last-activity ts)
//	conv:<id>:meta                 conversation record
//	conv:<cid>:msg:<stamp>         conversation time index (value: message id)
//	msg:<id>                       canonical message record (latest)
//	msg:<id>:rev:<stamp>           append-only body revision
//	msg:<pid>:child:<stamp>        reply index (value: child message id)
//	read:<uid>:msg:<mid>           read marker
//	notif:u:<uid>:<stamp>          notification record
//	notif:id:<nid>                 notification id -> storage key
//	notif:idx:<uid>:<mid>:<kind>   fan-out uniqueness marker

func UserKey(id string) []byte { return []byte("user:" + id) }

func UserConvKey(userID, convID string) []byte {
	return []byte("user:" + userID + ":conv:" + convID)
}

func UserConvPrefix(userID string) []byte {
	return []byte("user:" + userID + ":conv:")
}

func ConvMetaKey(convID string) []byte { return []byte("conv:" + convID + ":meta") }

func ConvMsgKey(convID, stamp string) []byte {
	return []byte("conv:" + convID + ":msg:" + stamp)
}

func ConvMsgPrefix(convID string) []byte { return []byte("conv:" + convID + ":msg:") }

func MsgKey(msgID string) []byte { return []byte("msg:" + msgID) }

func RevKey(msgID, stamp string) []byte {
	return []byte("msg:" + msgID + ":rev:" + stamp)
}

func RevPrefix(msgID string) []byte { return []byte("msg:" + msgID + ":rev:") }

func ChildKey(parentID, stamp string) []byte {
	return []byte("msg:" + parentID + ":child:" + stamp)
}

func ChildPrefix(parentID string) []byte { return []byte("msg:" + parentID + ":child:") }

func ReadMarkerKey(userID, msgID string) []byte {
	return []byte("read:" + userID + ":msg:" + msgID)
}

func NotifKey(userID, stamp string) []byte {
	return []byte("notif:u:" + userID + ":" + stamp)
}

func NotifPrefix(userID string) []byte { return []byte("notif:u:" + userID + ":") }

// NotifRecordPrefix covers every user's notification records (sweeper scans).
func NotifRecordPrefix() []byte { return []byte("notif:u:") }

func NotifIDKey(notifID string) []byte { return []byte("notif:id:" + notifID) }

func NotifIdxKey(userID, msgID, kind string) []byte {
	return []byte("notif:idx:" + userID + ":" + msgID + ":" + kind)
}

// Stamp renders a sortable timestamp+sequence suffix.
func Stamp(ts int64, seq uint64) string {
	return fmt.Sprintf("%020d-%06d", ts, seq)
}

// PrefixEnd returns the exclusive upper bound for scanning all keys that
// start with prefix.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
