package main

import (
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"voxstream/internal/logger"
)

// glWindow is a hidden window owning the GL context the megatextures live
// in.
type glWindow struct {
	w *glfw.Window
}

func openGLWindow() (*glWindow, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "glfw init")
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.False)

	w, err := glfw.CreateWindow(320, 180, "voxelstream", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "create window")
	}
	w.MakeContextCurrent()
	glfw.SwapInterval(0)

	if err := gl.Init(); err != nil {
		w.Destroy()
		glfw.Terminate()
		return nil, errors.Wrap(err, "gl init")
	}

	logger.L.WithFields(logrus.Fields{
		"version":  gl.GoStr(gl.GetString(gl.VERSION)),
		"renderer": gl.GoStr(gl.GetString(gl.RENDERER)),
	}).Info("gl context ready")
	return &glWindow{w: w}, nil
}

func (g *glWindow) ShouldClose() bool {
	return g.w.ShouldClose()
}

func (g *glWindow) SwapAndPoll() {
	g.w.SwapBuffers()
	glfw.PollEvents()
}

func (g *glWindow) Close() {
	g.w.Destroy()
	glfw.Terminate()
}
