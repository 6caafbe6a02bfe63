package header

const headerTemplate = `// Code generated by abigen. DO NOT EDIT.
// Library: {{.Library}}{{with .Version}} {{.}}{{end}}

#ifndef {{.Guard}}
#define {{.Guard}}

#ifndef __cplusplus
#include <stdlib.h>
#include <stdint.h>
#include <uchar.h>
#else
#include <memory>
#include <string>
#include <cstdint>
#include <cuchar>
{{if .Namespace}}
namespace {{.Namespace}}
{
{{- end}}
    extern "C"
    {
#endif

        typedef char16_t param_string;
        typedef char16_t param_json;
        typedef uint8_t param_bool;
        typedef int32_t param_int;
        typedef uint32_t param_uint;
        typedef void param_ptr;
        // Envelopes, error strings and payloads are released with dealloc, never free.
{{range .Structs}}
        typedef struct {{.Name}}
        {
            param_string *const error;
{{- with .Value}}
            {{.}};
{{- end}}
        } {{.Name}};
{{- end}}
{{range .Functions}}
{{- range .Doc}}
        // {{.}}
{{- end}}
        {{.Prototype}}
{{- end}}

#ifdef __cplusplus
    }

    template <typename T>
    struct deleter
    {
        void operator()(const T *ptr) const { dealloc(ptr); }
    };
{{range .Structs}}
    using {{.Alias}} = std::unique_ptr<{{.Name}}, deleter<{{.Name}}>>;
{{- end}}
{{- if .Namespace}}
}
{{- end}}
#endif

#endif
`
