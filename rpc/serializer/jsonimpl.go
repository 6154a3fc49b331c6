package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/jsondb/rpc/common"
)

// NewJSONSerializer creates a serializer using json encoding.
// Empty Value and Meta slices decode as nil.
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

func (jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return json.Unmarshal(b, msg)
}
