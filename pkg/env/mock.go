package env

import (
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// generateMock resolves mock expressions: the $uuid/$randomInt/$timestamp
// shorthands and $mock.<kind>. Generation is stateless; every call produces
// a fresh value. Unknown kinds are left unresolved so the placeholder stays
// visible in the output.
func generateMock(expr string) (string, bool) {
	switch expr {
	case "$uuid":
		return uuid.NewString(), true
	case "$randomInt":
		return strconv.Itoa(gofakeit.Number(0, 999999)), true
	case "$timestamp":
		return strconv.FormatInt(time.Now().UnixMilli(), 10), true
	}

	kind, ok := strings.CutPrefix(expr, "$mock.")
	if !ok {
		return "", false
	}

	switch kind {
	case "uuid":
		return uuid.NewString(), true
	case "email":
		return gofakeit.Email(), true
	case "name":
		return gofakeit.Name(), true
	case "firstName":
		return gofakeit.FirstName(), true
	case "lastName":
		return gofakeit.LastName(), true
	case "city":
		return gofakeit.City(), true
	case "country":
		return gofakeit.Country(), true
	case "phone":
		return gofakeit.Phone(), true
	case "date":
		return gofakeit.Date().Format(time.RFC3339), true
	case "boolean":
		return strconv.FormatBool(gofakeit.Bool()), true
	case "number":
		return strconv.Itoa(gofakeit.Number(0, 999999)), true
	case "word":
		return gofakeit.Word(), true
	case "sentence":
		return gofakeit.Sentence(8), true
	case "url":
		return gofakeit.URL(), true
	case "ip":
		return gofakeit.IPv4Address(), true
	case "color":
		return gofakeit.Color(), true
	case "company":
		return gofakeit.Company(), true
	case "username":
		return gofakeit.Username(), true
	case "password":
		return gofakeit.Password(true, true, true, false, false, 12), true
	}

	return "", false
}
