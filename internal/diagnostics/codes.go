package diagnostics

// Code identifies a well-known diagnostic category. The taxonomy covers
// every failure the compiler can surface to the user; internal invariant
// breaches are compiler bugs and panic instead.
type Code string

const (
	CodeUnresolvedPath              Code = "UNRESOLVED_PATH"
	CodeUnsupportedCallableKind     Code = "UNSUPPORTED_CALLABLE_KIND"
	CodeInputTypeUnresolvable       Code = "INPUT_TYPE_UNRESOLVABLE"
	CodeOutputTypeUnresolvable      Code = "OUTPUT_TYPE_UNRESOLVABLE"
	CodeGenericParameterUnresolvable Code = "GENERIC_PARAMETER_UNRESOLVABLE"
	CodeConstructorValidation       Code = "CONSTRUCTOR_VALIDATION"
	CodeHandlerValidation           Code = "HANDLER_VALIDATION"
	CodeMiddlewareValidation        Code = "MIDDLEWARE_VALIDATION"
	CodeErrorHandlerValidation      Code = "ERROR_HANDLER_VALIDATION"
	CodeMissingErrorHandler         Code = "MISSING_ERROR_HANDLER"
	CodeErrorHandlerForInfallible   Code = "ERROR_HANDLER_FOR_INFALLIBLE"
	CodeErrorHandlerForSingleton    Code = "ERROR_HANDLER_FOR_SINGLETON"
	CodeMissingResponseCoercion     Code = "MISSING_RESPONSE_COERCION"
	CodeRouterConflict              Code = "ROUTER_CONFLICT"
	CodeFallbackAmbiguity           Code = "FALLBACK_AMBIGUITY"
	CodeDependencyCycle             Code = "DEPENDENCY_CYCLE"
	CodeBorrowCheckerConflict       Code = "BORROW_CHECKER_CONFLICT"
	CodeBlueprintValidation         Code = "BLUEPRINT_VALIDATION"
	CodeConstructorAmbiguity        Code = "CONSTRUCTOR_AMBIGUITY"
	CodeConfigValidation            Code = "CONFIG_VALIDATION"
)
