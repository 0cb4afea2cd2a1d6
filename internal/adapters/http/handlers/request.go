package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"libraryhub/internal/adapters/http/middleware"
	"libraryhub/internal/core/domain"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names rather than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// parseBody decodes the JSON body into req and validates its tags
func parseBody(c *fiber.Ctx, req interface{}) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return domain.Errorf(domain.KindValidation, "invalid request body")
		}
	}
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.Wrap(domain.KindValidation, err, "invalid request")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return domain.Errorf(domain.KindValidation, "%s", strings.Join(msgs, "; "))
}

// paramID reads a positive numeric route parameter
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, domain.Errorf(domain.KindValidation, "invalid %s", name)
	}
	return uint(id), nil
}

// queryID reads an optional positive numeric query parameter
func queryID(c *fiber.Ctx, name string) (uint, bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false, domain.Errorf(domain.KindValidation, "invalid %s", name)
	}
	return uint(id), true, nil
}

// selfOrStaff allows staff, or a member acting on their own account
func selfOrStaff(c *fiber.Ctx, memberID uint) error {
	if middleware.IsStaff(c) || middleware.CallerID(c) == memberID {
		return nil
	}
	return domain.Errorf(domain.KindForbidden, "you may only act on your own account")
}

// actor names the caller for audit columns
func actor(c *fiber.Ctx) string {
	name, _ := c.Locals(middleware.LocalName).(string)
	role, _ := c.Locals(middleware.LocalRole).(string)
	if name == "" {
		name = "member " + strconv.FormatUint(uint64(middleware.CallerID(c)), 10)
	}
	if role == "" {
		return name
	}
	return strings.ToLower(role) + ":" + name
}
