package shader

// Built-in native shaders used outside the translated pass chain: the
// full-screen blit that presents a texture directly (the raw-input fallback
// path and the terminal feedback pass both use it).

const blitVertexSourceGL = `#version 410 core
layout (location = 0) in vec2 in_vert;
out vec2 frag_uv;
void main() {
    frag_uv = in_vert * 0.5 + 0.5;
    gl_Position = vec4(in_vert, 0.0, 1.0);
}
`

const blitFragmentSourceGL = `#version 410 core
in vec2 frag_uv;
out vec4 fragColor;
uniform sampler2D u_texture;
void main() { fragColor = texture(u_texture, frag_uv); }
`

const blitVertexSourceGLES = `#version 300 es
precision highp float;
layout (location = 0) in vec2 in_vert;
out vec2 frag_uv;
void main() {
    frag_uv = in_vert * 0.5 + 0.5;
    gl_Position = vec4(in_vert, 0.0, 1.0);
}
`

const blitFragmentSourceGLES = `#version 300 es
precision mediump float;
in vec2 frag_uv;
out vec4 fragColor;
uniform sampler2D u_texture;
void main() { fragColor = texture(u_texture, frag_uv); }
`

func BlitVertexSource(gles bool) string {
	if gles {
		return blitVertexSourceGLES
	}
	return blitVertexSourceGL
}

func BlitFragmentSource(gles bool) string {
	if gles {
		return blitFragmentSourceGLES
	}
	return blitFragmentSourceGL
}

// CompileNative compiles and links shader sources already written in the
// context's native GLSL, bypassing the translator.
func CompileNative(vertexSource, fragmentSource string) (uint32, error) {
	return linkProgram(vertexSource, fragmentSource, nil)
}
