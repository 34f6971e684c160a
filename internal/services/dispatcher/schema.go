package dispatcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/magabrotheeeer/botgate/internal/botapi"
)

// ErrInvalidUpdate тело обновления не соответствует схеме.
var ErrInvalidUpdate = errors.New("invalid update")

const updateSchema = `{
  "type": "object",
  "required": ["update_id"],
  "properties": {
    "update_id": {"type": "integer"},
    "message": {
      "type": "object",
      "required": ["chat"],
      "properties": {
        "chat": {
          "type": "object",
          "required": ["id"],
          "properties": {"id": {"type": "integer"}}
        },
        "from": {"$ref": "#/definitions/user"},
        "text": {"type": "string"},
        "successful_payment": {
          "type": "object",
          "required": ["currency", "total_amount", "invoice_payload"],
          "properties": {
            "currency": {"type": "string", "minLength": 3, "maxLength": 3},
            "total_amount": {"type": "integer", "minimum": 1},
            "invoice_payload": {"type": "string", "minLength": 1},
            "telegram_payment_charge_id": {"type": "string"},
            "provider_payment_charge_id": {"type": "string"}
          }
        }
      }
    },
    "callback_query": {
      "type": "object",
      "required": ["id", "from"],
      "properties": {
        "id": {"type": "string"},
        "from": {"$ref": "#/definitions/user"},
        "data": {"type": "string"}
      }
    },
    "pre_checkout_query": {
      "type": "object",
      "required": ["id", "from", "currency", "total_amount", "invoice_payload"],
      "properties": {
        "id": {"type": "string"},
        "from": {"$ref": "#/definitions/user"},
        "currency": {"type": "string"},
        "total_amount": {"type": "integer"},
        "invoice_payload": {"type": "string"}
      }
    }
  },
  "definitions": {
    "user": {
      "type": "object",
      "required": ["id"],
      "properties": {"id": {"type": "integer"}}
    }
  }
}`

// Decoder проверяет тело обновления по JSON-схеме и разбирает его.
type Decoder struct {
	schema *gojsonschema.Schema
}

// NewDecoder компилирует схему обновления.
func NewDecoder() (*Decoder, error) {
	const op = "dispatcher.NewDecoder"

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(updateSchema))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Decoder{schema: schema}, nil
}

// Decode проверяет и разбирает тело обновления.
func (d *Decoder) Decode(body []byte) (*botapi.Update, error) {
	const op = "dispatcher.Decode"

	result, err := d.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidUpdate, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidUpdate, strings.Join(errs, "; "))
	}

	var update botapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidUpdate, err)
	}
	return &update, nil
}
