package application

import (
	"fmt"
	"strings"

	"crm-ai-agent/domain"
)

// FieldInfo describes one queryable column.
type FieldInfo struct {
	Name        string
	Type        string
	Description string
	Filterable  bool
	Values      []string // Allowed values for enum-like fields
}

// TableInfo describes one queryable entity.
type TableInfo struct {
	Entity      domain.EntityType
	Name        string
	Description string
	Fields      []FieldInfo
}

// SchemaIntrospector produces the static description of the entities the
// agent can query. It is grounding text for the classifier and never looks
// at a live database.
type SchemaIntrospector struct {
	tables []TableInfo
}

// NewSchemaIntrospector creates a SchemaIntrospector over the built-in CRM tables.
func NewSchemaIntrospector() *SchemaIntrospector {
	return &SchemaIntrospector{tables: crmTables()}
}

func crmTables() []TableInfo {
	common := []FieldInfo{
		{Name: "id", Type: "uuid", Description: "Identificador único"},
		{Name: "tenantId", Type: "uuid", Description: "Empresa propietaria"},
		{Name: "createdAt", Type: "datetime", Description: "Fecha de creación", Filterable: true},
	}
	with := func(fields ...FieldInfo) []FieldInfo {
		return append(append([]FieldInfo{}, common...), fields...)
	}

	return []TableInfo{
		{
			Entity:      domain.EntityClient,
			Name:        "Client",
			Description: "Clientes de la empresa",
			Fields: with(
				FieldInfo{Name: "name", Type: "string", Description: "Nombre completo", Filterable: true},
				FieldInfo{Name: "email", Type: "string", Description: "Correo electrónico", Filterable: true},
				FieldInfo{Name: "phone", Type: "string", Description: "Teléfono"},
				FieldInfo{Name: "type", Type: "enum", Description: "Tipo de cliente", Filterable: true, Values: domain.ClientTypes},
				FieldInfo{Name: "notes", Type: "text", Description: "Notas libres"},
			),
		},
		{
			Entity:      domain.EntityEvent,
			Name:        "Event",
			Description: "Eventos y reservas",
			Fields: with(
				FieldInfo{Name: "title", Type: "string", Description: "Título del evento", Filterable: true},
				FieldInfo{Name: "status", Type: "enum", Description: "Estado", Filterable: true, Values: domain.EventStatuses},
				FieldInfo{Name: "startDate", Type: "datetime", Description: "Inicio", Filterable: true},
				FieldInfo{Name: "endDate", Type: "datetime", Description: "Fin"},
				FieldInfo{Name: "clientId", Type: "uuid", Description: "Cliente (Client.id)", Filterable: true},
				FieldInfo{Name: "roomId", Type: "uuid", Description: "Sala (Room.id)", Filterable: true},
				FieldInfo{Name: "notes", Type: "text", Description: "Notas libres"},
			),
		},
		{
			Entity:      domain.EntityQuote,
			Name:        "Quote",
			Description: "Cotizaciones",
			Fields: with(
				FieldInfo{Name: "number", Type: "string", Description: "Número PREFIJO-AÑO-NNN", Filterable: true},
				FieldInfo{Name: "status", Type: "enum", Description: "Estado", Filterable: true, Values: domain.QuoteStatuses},
				FieldInfo{Name: "total", Type: "decimal", Description: "Importe total"},
				FieldInfo{Name: "validUntil", Type: "datetime", Description: "Válida hasta"},
				FieldInfo{Name: "clientId", Type: "uuid", Description: "Cliente (Client.id)", Filterable: true},
				FieldInfo{Name: "notes", Type: "text", Description: "Notas libres"},
			),
		},
		{
			Entity:      domain.EntityRoom,
			Name:        "Room",
			Description: "Salas disponibles",
			Fields: with(
				FieldInfo{Name: "name", Type: "string", Description: "Nombre de la sala", Filterable: true},
				FieldInfo{Name: "capacity", Type: "integer", Description: "Capacidad"},
			),
		},
		{
			Entity:      domain.EntityProduct,
			Name:        "Product",
			Description: "Catálogo de productos y servicios",
			Fields: with(
				FieldInfo{Name: "name", Type: "string", Description: "Nombre", Filterable: true},
				FieldInfo{Name: "itemType", Type: "enum", Description: "Producto o servicio", Filterable: true, Values: domain.ProductItemTypes},
				FieldInfo{Name: "category", Type: "string", Description: "Categoría", Filterable: true},
				FieldInfo{Name: "description", Type: "text", Description: "Descripción"},
				FieldInfo{Name: "unit", Type: "string", Description: "Unidad de venta"},
				FieldInfo{Name: "sku", Type: "string", Description: "Código interno", Filterable: true},
				FieldInfo{Name: "price", Type: "decimal", Description: "Precio unitario"},
				FieldInfo{Name: "isActive", Type: "boolean", Description: "Disponible para cotizar", Filterable: true},
			),
		},
	}
}

// Tables returns the table descriptions in a stable order.
func (s *SchemaIntrospector) Tables() []TableInfo {
	return s.tables
}

// FilterableFields returns the fields of entity that handlers may filter on.
func (s *SchemaIntrospector) FilterableFields(entity domain.EntityType) []string {
	for _, t := range s.tables {
		if t.Entity != entity {
			continue
		}
		var out []string
		for _, f := range t.Fields {
			if f.Filterable {
				out = append(out, f.Name)
			}
		}
		return out
	}
	return nil
}

// DescribeSchema renders the tables as plain text for the classifier prompt.
func (s *SchemaIntrospector) DescribeSchema() string {
	var b strings.Builder
	b.WriteString("Entidades disponibles (todas filtradas por tenantId):\n")
	for _, t := range s.tables {
		fmt.Fprintf(&b, "\n%s (%s): %s\n", t.Name, t.Entity, t.Description)
		for _, f := range t.Fields {
			fmt.Fprintf(&b, "  - %s: %s", f.Name, f.Type)
			if len(f.Values) > 0 {
				fmt.Fprintf(&b, " [%s]", strings.Join(f.Values, ", "))
			}
			fmt.Fprintf(&b, " - %s\n", f.Description)
		}
	}
	return b.String()
}

// canonicalExamples are the fixed few-shot classifications.
var canonicalExamples = []struct {
	Query  string
	Intent string
}{
	{"¿Cuántos clientes tengo?", `{"type":"count","entity":"CLIENT","confidence":0.95}`},
	{"Total de eventos", `{"type":"count","entity":"EVENT","confidence":0.9}`},
	{"Dame el primer cliente", `{"type":"get","entity":"CLIENT","action":"getFirst","confidence":0.9}`},
	{"¿Cuál fue el último evento?", `{"type":"get","entity":"EVENT","action":"getLast","confidence":0.9}`},
	{"Lista las cotizaciones", `{"type":"list","entity":"QUOTE","params":{"limit":10},"confidence":0.9}`},
	{"Muestra todos los clientes", `{"type":"list","entity":"CLIENT","confidence":0.9}`},
	{"Busca eventos de boda", `{"type":"search","entity":"EVENT","params":{"query":"boda"},"confidence":0.85}`},
	{"Encuentra al cliente Juan Pérez", `{"type":"search","entity":"CLIENT","params":{"query":"Juan Pérez"},"confidence":0.85}`},
	{"¿Cuántos productos tengo?", `{"type":"count","entity":"PRODUCT","confidence":0.9}`},
	{"¿Qué tenemos para el fin de semana?", `{"type":"general","params":{"query":"fin de semana"},"confidence":0.6}`},
}

// DescribeQueryExamples renders the canonical query→classification pairs.
func (s *SchemaIntrospector) DescribeQueryExamples() string {
	var b strings.Builder
	b.WriteString("Ejemplos:\n")
	for _, ex := range canonicalExamples {
		fmt.Fprintf(&b, "Consulta: %q\nRespuesta: %s\n", ex.Query, ex.Intent)
	}
	return b.String()
}
