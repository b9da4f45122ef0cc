package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quillshelf/quillshelf/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ValidationMiddleware provides request/response validation middleware
type ValidationMiddleware struct {
	validator *validation.SchemaValidator
}

// NewValidationMiddleware creates a new validation middleware instance
func NewValidationMiddleware(validator *validation.SchemaValidator) *ValidationMiddleware {
	return &ValidationMiddleware{
		validator: validator,
	}
}

// ValidateLibraryEntry validates library entry create/update requests
func (vm *ValidationMiddleware) ValidateLibraryEntry() gin.HandlerFunc {
	return vm.validateRequestBody("library-entry")
}

// ValidateLibraryImport validates bulk import requests
func (vm *ValidationMiddleware) ValidateLibraryImport() gin.HandlerFunc {
	return vm.validateRequestBody("library-import")
}

// ValidatePreference validates like/dislike requests
func (vm *ValidationMiddleware) ValidatePreference() gin.HandlerFunc {
	return vm.validateRequestBody("preference")
}

// validateRequestBody creates a middleware that validates request body against a schema
func (vm *ValidationMiddleware) validateRequestBody(schemaName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only validate for methods that have request bodies
		if c.Request.Method == "GET" || c.Request.Method == "DELETE" {
			c.Next()
			return
		}

		// Read request body
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			vm.sendValidationError(c, "BODY_READ_ERROR", "Failed to read request body", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}

		// Restore request body for downstream handlers
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		// Skip validation for empty bodies
		if len(bodyBytes) == 0 {
			vm.sendValidationError(c, "EMPTY_BODY", "Request body is required", nil)
			return
		}

		// Validate JSON format first
		var jsonData interface{}
		if err := json.Unmarshal(bodyBytes, &jsonData); err != nil {
			vm.sendValidationError(c, "INVALID_JSON", "Request body must be valid JSON", map[string]interface{}{
				"parseError": err.Error(),
			})
			return
		}

		// Validate against schema
		result := vm.validator.ValidateJSONString(schemaName, string(bodyBytes))
		if !result.Valid {
			apiError := result.ToAPIError()
			if errorObj, ok := apiError["error"].(map[string]interface{}); ok {
				errorObj["timestamp"] = time.Now().UTC().Format(time.RFC3339)
				errorObj["requestId"] = uuid.New().String()
				errorObj["path"] = c.Request.URL.Path
				errorObj["method"] = c.Request.Method
			}

			c.JSON(http.StatusBadRequest, apiError)
			c.Abort()
			return
		}

		// Store validated data in context for downstream handlers
		c.Set("validatedBody", jsonData)
		c.Next()
	}
}

// ValidateQueryParams validates query parameters
func (vm *ValidationMiddleware) ValidateQueryParams() gin.HandlerFunc {
	return func(c *gin.Context) {
		errors := make([]validation.ValidationError, 0)

		if limit := c.Query("limit"); limit != "" {
			if !vm.isValidPositiveInt(limit, 1, 50) {
				errors = append(errors, validation.ValidationError{
					Field:   "limit",
					Message: "Limit must be an integer between 1 and 50",
					Code:    "INVALID_QUERY_PARAM",
					Value:   limit,
				})
			}
		}

		if minRating := c.Query("min_rating"); minRating != "" {
			if !vm.isValidPositiveInt(minRating, 1, 10) {
				errors = append(errors, validation.ValidationError{
					Field:   "min_rating",
					Message: "Minimum rating must be an integer between 1 and 10",
					Code:    "INVALID_QUERY_PARAM",
					Value:   minRating,
				})
			}
		}

		if seedMode := c.Query("seed_mode"); seedMode != "" {
			validModes := []string{"liked", "all_read"}
			if !vm.isValidEnum(seedMode, validModes) {
				errors = append(errors, validation.ValidationError{
					Field:   "seed_mode",
					Message: fmt.Sprintf("Seed mode must be one of: %s", strings.Join(validModes, ", ")),
					Code:    "INVALID_QUERY_PARAM",
					Value:   seedMode,
				})
			}
		}

		if seedIDs := c.Query("seed_ids"); seedIDs != "" {
			if !vm.isValidIDList(seedIDs) {
				errors = append(errors, validation.ValidationError{
					Field:   "seed_ids",
					Message: "Seed IDs must be a comma-separated list of positive integers",
					Code:    "INVALID_QUERY_PARAM",
					Value:   seedIDs,
				})
			}
		}

		// Validate entry ID in path
		if id := c.Param("id"); id != "" {
			if !vm.isValidEntryID(id) {
				errors = append(errors, validation.ValidationError{
					Field:   "id",
					Message: "Entry ID must be a positive integer",
					Code:    "INVALID_PATH_PARAM",
					Value:   id,
				})
			}
		}

		if debug := c.Query("debug"); debug != "" {
			validValues := []string{"true", "false"}
			if !vm.isValidEnum(debug, validValues) {
				errors = append(errors, validation.ValidationError{
					Field:   "debug",
					Message: "Debug must be 'true' or 'false'",
					Code:    "INVALID_QUERY_PARAM",
					Value:   debug,
				})
			}
		}

		// If there are validation errors, return them
		if len(errors) > 0 {
			vm.sendValidationErrors(c, errors)
			return
		}

		c.Next()
	}
}

// ValidateHeaders validates required headers
func (vm *ValidationMiddleware) ValidateHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		errors := make([]validation.ValidationError, 0)

		// Validate Content-Type for POST/PUT requests
		if c.Request.Method == "POST" || c.Request.Method == "PUT" || c.Request.Method == "PATCH" {
			contentType := c.GetHeader("Content-Type")
			if contentType == "" {
				errors = append(errors, validation.ValidationError{
					Field:   "Content-Type",
					Message: "Content-Type header is required",
					Code:    "MISSING_HEADER",
				})
			} else if !strings.Contains(contentType, "application/json") {
				errors = append(errors, validation.ValidationError{
					Field:   "Content-Type",
					Message: "Content-Type must be application/json",
					Code:    "INVALID_HEADER",
					Value:   contentType,
				})
			}
		}

		// Validate Accept header if present
		if accept := c.GetHeader("Accept"); accept != "" {
			if !strings.Contains(accept, "application/json") && !strings.Contains(accept, "*/*") {
				errors = append(errors, validation.ValidationError{
					Field:   "Accept",
					Message: "Accept header must include application/json",
					Code:    "INVALID_HEADER",
					Value:   accept,
				})
			}
		}

		if len(errors) > 0 {
			vm.sendValidationErrors(c, errors)
			return
		}

		c.Next()
	}
}

// Helper validation functions
func (vm *ValidationMiddleware) isValidPositiveInt(value string, min, max int) bool {
	num, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	return num >= min && num <= max
}

func (vm *ValidationMiddleware) isValidEntryID(value string) bool {
	num, err := strconv.ParseInt(value, 10, 64)
	return err == nil && num > 0
}

func (vm *ValidationMiddleware) isValidIDList(value string) bool {
	for _, part := range strings.Split(value, ",") {
		if !vm.isValidEntryID(strings.TrimSpace(part)) {
			return false
		}
	}
	return true
}

func (vm *ValidationMiddleware) isValidEnum(value string, validValues []string) bool {
	for _, valid := range validValues {
		if value == valid {
			return true
		}
	}
	return false
}

// Error response helpers
func (vm *ValidationMiddleware) sendValidationError(c *gin.Context, code, message string, details map[string]interface{}) {
	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":      code,
			"message":   message,
			"details":   details,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"requestId": uuid.New().String(),
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
		},
	}

	c.JSON(http.StatusBadRequest, errorResponse)
	c.Abort()
}

func (vm *ValidationMiddleware) sendValidationErrors(c *gin.Context, errors []validation.ValidationError) {
	errorDetails := make(map[string]interface{})
	errorDetails["validationErrors"] = errors

	// Group errors by field for easier client handling
	fieldErrors := make(map[string][]string)
	for _, err := range errors {
		if err.Field != "" {
			fieldErrors[err.Field] = append(fieldErrors[err.Field], err.Message)
		}
	}

	if len(fieldErrors) > 0 {
		errorDetails["fieldErrors"] = fieldErrors
	}

	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":      "VALIDATION_ERROR",
			"message":   "Request validation failed",
			"details":   errorDetails,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"requestId": uuid.New().String(),
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
		},
	}

	c.JSON(http.StatusBadRequest, errorResponse)
	c.Abort()
}

// ResponseValidator validates outgoing responses (for development/testing)
type ResponseValidator struct {
	validator *validation.SchemaValidator
	enabled   bool
}

// NewResponseValidator creates a new response validator
func NewResponseValidator(validator *validation.SchemaValidator, enabled bool) *ResponseValidator {
	return &ResponseValidator{
		validator: validator,
		enabled:   enabled,
	}
}

// ValidateResponse validates response data against schema
func (rv *ResponseValidator) ValidateResponse(schemaName string, data interface{}) error {
	if !rv.enabled {
		return nil
	}

	result := rv.validator.ValidateStruct(schemaName, data)
	if !result.Valid {
		return fmt.Errorf("response validation failed: %v", result.Errors)
	}

	return nil
}
