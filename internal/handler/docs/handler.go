package docs

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/mis-api/internal/model"
)

// Handler serves the OpenAPI document and a Swagger UI page for it
type Handler struct {
	version  string
	document map[string]interface{}
}

func NewHandler(version string) *Handler {
	return &Handler{
		version:  version,
		document: BuildDocument(version),
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/schema/", h.Schema)
	r.GET("/docs/", h.SwaggerUI)
}

func (h *Handler) Schema(c *gin.Context) {
	c.JSON(http.StatusOK, h.document)
}

func (h *Handler) SwaggerUI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerUIHTML))
}

// BuildDocument produces the OpenAPI 3.0 document as a map.
func BuildDocument(version string) map[string]interface{} {
	idParam := []map[string]interface{}{
		{"name": "id", "in": "path", "required": true, "schema": map[string]string{"type": "integer"}},
	}
	secured := []map[string][]string{{"bearerAuth": {}}}

	paths := map[string]interface{}{
		"/api/auth/register/": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Register a user",
				"operationId": "register",
				"tags":        []string{"auth"},
				"requestBody": jsonBody("#/components/schemas/RegisterRequest"),
				"responses": map[string]interface{}{
					"201": response("Created", "#/components/schemas/Detail"),
					"400": response("Validation or integrity error", "#/components/schemas/Error"),
				},
			},
		},
		"/api/auth/login/": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Obtain an access and refresh token pair",
				"operationId": "login",
				"tags":        []string{"auth"},
				"requestBody": jsonBody("#/components/schemas/LoginRequest"),
				"responses": map[string]interface{}{
					"200": response("Token pair", "#/components/schemas/TokenPair"),
					"401": response("No active account", "#/components/schemas/Detail"),
				},
			},
		},
		"/api/auth/refresh/": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Rotate a refresh token",
				"operationId": "refresh",
				"tags":        []string{"auth"},
				"requestBody": jsonBody("#/components/schemas/RefreshRequest"),
				"responses": map[string]interface{}{
					"200": response("Token pair", "#/components/schemas/TokenPair"),
					"401": response("Invalid token", "#/components/schemas/Detail"),
				},
			},
		},
		"/api/consultations/": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "List visible consultations",
				"operationId": "listConsultations",
				"tags":        []string{"consultations"},
				"security":    secured,
				"parameters":  listParameters(),
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Consultations",
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{
									"type":  "array",
									"items": ref("#/components/schemas/Consultation"),
								},
							},
						},
					},
				},
			},
			"post": map[string]interface{}{
				"summary":     "Create a consultation",
				"operationId": "createConsultation",
				"tags":        []string{"consultations"},
				"security":    secured,
				"requestBody": jsonBody("#/components/schemas/ConsultationWrite"),
				"responses": map[string]interface{}{
					"201": response("Created", "#/components/schemas/Consultation"),
					"400": response("Validation error", "#/components/schemas/Error"),
					"403": response("Forbidden", "#/components/schemas/Detail"),
				},
			},
		},
		"/api/consultations/{id}/": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Retrieve a consultation",
				"operationId": "retrieveConsultation",
				"tags":        []string{"consultations"},
				"security":    secured,
				"parameters":  idParam,
				"responses": map[string]interface{}{
					"200": response("Consultation", "#/components/schemas/Consultation"),
					"404": response("Not found", "#/components/schemas/Detail"),
				},
			},
			"put": map[string]interface{}{
				"summary":     "Replace a consultation",
				"operationId": "updateConsultation",
				"tags":        []string{"consultations"},
				"security":    secured,
				"parameters":  idParam,
				"requestBody": jsonBody("#/components/schemas/ConsultationWrite"),
				"responses": map[string]interface{}{
					"200": response("Updated", "#/components/schemas/Consultation"),
					"400": response("Validation error", "#/components/schemas/Error"),
					"403": response("Forbidden", "#/components/schemas/Detail"),
					"404": response("Not found", "#/components/schemas/Detail"),
				},
			},
			"patch": map[string]interface{}{
				"summary":     "Partially update a consultation",
				"operationId": "partialUpdateConsultation",
				"tags":        []string{"consultations"},
				"security":    secured,
				"parameters":  idParam,
				"requestBody": jsonBody("#/components/schemas/ConsultationWrite"),
				"responses": map[string]interface{}{
					"200": response("Updated", "#/components/schemas/Consultation"),
					"400": response("Validation error", "#/components/schemas/Error"),
					"403": response("Forbidden", "#/components/schemas/Detail"),
					"404": response("Not found", "#/components/schemas/Detail"),
				},
			},
			"delete": map[string]interface{}{
				"summary":     "Delete a consultation",
				"operationId": "destroyConsultation",
				"tags":        []string{"consultations"},
				"security":    secured,
				"parameters":  idParam,
				"responses": map[string]interface{}{
					"204": map[string]interface{}{"description": "Deleted"},
					"403": response("Forbidden", "#/components/schemas/Detail"),
					"404": response("Not found", "#/components/schemas/Detail"),
				},
			},
		},
		"/api/consultations/{id}/change_status/": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Change the status of a consultation",
				"operationId": "changeConsultationStatus",
				"tags":        []string{"consultations"},
				"security":    secured,
				"parameters":  idParam,
				"requestBody": jsonBody("#/components/schemas/ChangeStatusRequest"),
				"responses": map[string]interface{}{
					"200": response("Status changed", "#/components/schemas/Consultation"),
					"400": response("Missing or invalid status", "#/components/schemas/Detail"),
					"403": response("Permission denied", "#/components/schemas/Detail"),
					"404": response("Not found", "#/components/schemas/Detail"),
				},
			},
		},
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Medical Consultation API",
			"version":     version,
			"description": "Consultations between doctors and patients",
		},
		"paths": paths,
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
			"schemas": componentSchemas(),
		},
	}
}

func listParameters() []map[string]interface{} {
	params := []map[string]interface{}{
		{"name": "status", "in": "query", "schema": map[string]interface{}{"type": "string", "enum": statusNames()}},
	}
	for _, name := range []string{"clinic__id", "doctor__id", "patient__id"} {
		params = append(params, map[string]interface{}{
			"name": name, "in": "query", "schema": map[string]string{"type": "integer"},
		})
	}
	params = append(params,
		map[string]interface{}{
			"name": "search", "in": "query",
			"description": "Whitespace-separated terms matched against doctor and patient names",
			"schema":      map[string]string{"type": "string"},
		},
		map[string]interface{}{
			"name": "ordering", "in": "query",
			"description": "created_at, -created_at, start_time or -start_time; comma-separated",
			"schema":      map[string]string{"type": "string"},
		},
	)
	return params
}

func componentSchemas() map[string]interface{} {
	str := map[string]string{"type": "string"}
	integer := map[string]string{"type": "integer"}
	dateTime := map[string]string{"type": "string", "format": "date-time"}

	roles := make([]string, 0, len(model.Roles))
	for _, r := range model.Roles {
		roles = append(roles, string(r))
	}

	userSummary := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"username":    str,
			"first_name":  str,
			"middle_name": str,
			"last_name":   str,
			"email":       str,
			"role":        map[string]interface{}{"type": "string", "enum": roles},
		},
	}
	profile := func(extra map[string]interface{}) map[string]interface{} {
		props := map[string]interface{}{
			"id":          integer,
			"user":        ref("#/components/schemas/UserSummary"),
			"first_name":  str,
			"last_name":   str,
			"middle_name": str,
			"full_name":   str,
		}
		for k, v := range extra {
			props[k] = v
		}
		return map[string]interface{}{"type": "object", "properties": props}
	}

	return map[string]interface{}{
		"Detail": map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"detail": str},
		},
		"Error": map[string]interface{}{
			"type":        "object",
			"description": "Either a detail message or a map of field name to messages",
			"additionalProperties": map[string]interface{}{
				"oneOf": []interface{}{str, map[string]interface{}{"type": "array", "items": str}},
			},
		},
		"RegisterRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"username", "password", "role"},
			"properties": map[string]interface{}{
				"username":    map[string]interface{}{"type": "string", "maxLength": 150},
				"password":    map[string]interface{}{"type": "string", "minLength": 8, "writeOnly": true},
				"role":        map[string]interface{}{"type": "string", "enum": roles},
				"first_name":  str,
				"last_name":   str,
				"middle_name": str,
				"email":       map[string]string{"type": "string", "format": "email"},
			},
		},
		"LoginRequest": map[string]interface{}{
			"type":       "object",
			"required":   []string{"username", "password"},
			"properties": map[string]interface{}{"username": str, "password": str},
		},
		"RefreshRequest": map[string]interface{}{
			"type":       "object",
			"required":   []string{"refresh"},
			"properties": map[string]interface{}{"refresh": str},
		},
		"TokenPair": map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"access": str, "refresh": str},
		},
		"UserSummary": userSummary,
		"Doctor": profile(map[string]interface{}{
			"specialization": str,
			"clinics":        map[string]interface{}{"type": "array", "items": integer},
		}),
		"Patient": profile(map[string]interface{}{
			"phone": str,
			"email": str,
		}),
		"Consultation": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":         integer,
				"created_at": dateTime,
				"start_time": dateTime,
				"end_time":   dateTime,
				"status":     map[string]interface{}{"type": "string", "enum": statusNames()},
				"doctor":     ref("#/components/schemas/Doctor"),
				"patient":    ref("#/components/schemas/Patient"),
				"clinic":     map[string]interface{}{"type": "integer", "nullable": true},
				"notes":      str,
			},
		},
		"ConsultationWrite": map[string]interface{}{
			"type":     "object",
			"required": []string{"doctor_id", "patient_id", "start_time", "end_time"},
			"properties": map[string]interface{}{
				"doctor_id":  integer,
				"patient_id": integer,
				"clinic":     map[string]interface{}{"type": "integer", "nullable": true},
				"start_time": dateTime,
				"end_time":   dateTime,
				"status":     map[string]interface{}{"type": "string", "enum": statusNames()},
				"notes":      str,
			},
		},
		"ChangeStatusRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"status"},
			"properties": map[string]interface{}{
				"status": map[string]interface{}{"type": "string", "enum": statusNames()},
			},
		},
	}
}

func statusNames() []string {
	names := make([]string, 0, len(model.ConsultationStatuses))
	for _, s := range model.ConsultationStatuses {
		names = append(names, string(s))
	}
	return names
}

func ref(target string) map[string]string {
	return map[string]string{"$ref": target}
}

func jsonBody(schema string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": ref(schema)},
		},
	}
}

func response(description, schema string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": ref(schema)},
		},
	}
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Medical Consultation API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/schema/",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`
