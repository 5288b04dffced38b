package reader

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cjsb/SparseVoxelOctree/asset"
	"github.com/cjsb/SparseVoxelOctree/asset/mesh"
	"github.com/cjsb/SparseVoxelOctree/log"
	"github.com/cjsb/SparseVoxelOctree/types"
)

type wavefrontMaterial struct {
	Name string

	// Diffuse/Albedo color.
	Kd types.Vec3

	// Emissive color and scaler.
	Ke       types.Vec3
	KeScaler float32
}

func (wf *wavefrontMaterial) toMaterial() mesh.Material {
	emission := wf.Ke
	if wf.KeScaler != 0 {
		emission = emission.Mul(wf.KeScaler)
	}
	return mesh.Material{
		Name:     wf.Name,
		Albedo:   wf.Kd,
		Emission: emission,
	}
}

type wavefrontReader struct {
	logger log.Logger

	mesh *mesh.Mesh

	// Material name to index into mesh.Materials.
	matNameToIndex map[string]int

	// Currently selected material index (-1 selects the default material).
	curMaterial int

	// Parsed materials. Copied to the mesh once parsing completes so that
	// "include" directives can still reference them.
	materials []*wavefrontMaterial

	vertexList []types.Vec3
	normalList []types.Vec3

	// An error stack that provides additional error information when
	// mesh files include other files (models, mat libs e.t.c)
	errStack []string
}

// Create a new wavefront obj reader.
func newWavefrontReader() *wavefrontReader {
	return &wavefrontReader{
		logger:         log.New("wavefront reader"),
		mesh:           mesh.New(""),
		matNameToIndex: make(map[string]int),
		curMaterial:    -1,
		vertexList:     make([]types.Vec3, 0),
		normalList:     make([]types.Vec3, 0),
		errStack:       make([]string, 0),
	}
}

// Read mesh definition.
func (r *wavefrontReader) Read(res *asset.Resource) (*mesh.Mesh, error) {
	r.logger.Noticef(`parsing mesh from "%s"`, res.Path())
	start := time.Now()

	err := r.parse(res)
	if err != nil {
		return nil, err
	}

	for _, wfMat := range r.materials {
		r.mesh.AddMaterial(wfMat.toMaterial())
	}

	r.logger.Noticef(
		"parsed %d triangles and %d materials in %d ms",
		len(r.mesh.Triangles), len(r.mesh.Materials), time.Since(start).Nanoseconds()/1e6,
	)
	return r.mesh, nil
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n"))
	} else {
		errMsg = fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n"))
	}

	return errors.New(strings.Trim(errMsg, "\n"))
}

// Push a frame to the error stack.
func (r *wavefrontReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Parse wavefront object format.
func (r *wavefrontReader) parse(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	// Included object files use 1-based indices relative to their own
	// vertex lists.
	relVertexOffset := len(r.vertexList)
	relNormalOffset := len(r.normalList)

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))

			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, err.Error())
			}

			switch lineTokens[0] {
			case "call":
				err = r.parse(incRes)
			case "mtllib":
				err = r.parseMaterials(incRes)
			}
			incRes.Close()

			if err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "usemtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matIndex, exists := r.matNameToIndex[lineTokens[1]]
			if !exists {
				return r.emitError(res.Path(), lineNum, `undefined material with name "%s"`, lineTokens[1])
			}
			r.curMaterial = matIndex
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, err.Error())
			}
			r.normalList = append(r.normalList, v)
		case "o":
			if len(lineTokens) > 1 && len(r.mesh.Triangles) == 0 {
				r.mesh.Name = lineTokens[1]
			}
		case "f":
			triList, err := r.parseFace(lineTokens, relVertexOffset, relNormalOffset)
			if err != nil {
				return r.emitError(res.Path(), lineNum, err.Error())
			}
			for _, tri := range triList {
				r.mesh.AddTriangle(tri)
			}
		case "camera_fov", "camera_eye", "camera_look":
			if r.mesh.Camera == nil {
				r.mesh.Camera = &mesh.Camera{FOV: 45, Look: types.Vec3{0, 0, -1}}
			}
			switch lineTokens[0] {
			case "camera_fov":
				r.mesh.Camera.FOV, err = parseFloat32(lineTokens)
			case "camera_eye":
				r.mesh.Camera.Eye, err = parseVec3(lineTokens)
			case "camera_look":
				r.mesh.Camera.Look, err = parseVec3(lineTokens)
			}
			if err != nil {
				return r.emitError(res.Path(), lineNum, err.Error())
			}
		}
	}

	return scanner.Err()
}

// Parse face definition. Each face argument is comprised of 1, 2 or 3
// indices separated by a slash character:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Indices start from 1 and may be negative to indicate an offset off the
// end of the vertex/normal list. UV indices are validated for syntax but
// otherwise ignored. Faces with more than 3 vertices are triangulated as a
// fan around the first vertex.
func (r *wavefrontReader) parseFace(lineTokens []string, relVertexOffset, relNormalOffset int) ([]mesh.Triangle, error) {
	if len(lineTokens) < 4 {
		return nil, fmt.Errorf(`unsupported syntax for "f"; expected at least 3 arguments; got %d`, len(lineTokens)-1)
	}

	argCount := len(lineTokens) - 1
	vertices := make([]types.Vec3, argCount)
	normals := make([]types.Vec3, argCount)
	var vOffset int
	var err error
	expIndices := 0
	for arg := 0; arg < argCount; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return nil, fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		if vTokens[0] == "" {
			return nil, fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		vOffset, err = selectFaceCoordIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return nil, fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}
		vertices[arg] = r.vertexList[vOffset]

		if expIndices > 2 && vTokens[2] != "" {
			vOffset, err = selectFaceCoordIndex(vTokens[2], len(r.normalList), relNormalOffset)
			if err != nil {
				return nil, fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
			normals[arg] = r.normalList[vOffset]
		}
	}

	triangles := make([]mesh.Triangle, 0, argCount-2)
	for idx := 1; idx < argCount-1; idx++ {
		tri := mesh.Triangle{
			Vertices:      [3]types.Vec3{vertices[0], vertices[idx], vertices[idx+1]},
			Normals:       [3]types.Vec3{normals[0], normals[idx], normals[idx+1]},
			MaterialIndex: r.curMaterial,
		}
		fixNormals(&tri)
		triangles = append(triangles, tri)
	}

	return triangles, nil
}

// Parse a wavefront material library.
func (r *wavefrontReader) parseMaterials(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	r.logger.Infof(`parsing material library "%s"`, res.Path())

	scanner := bufio.NewScanner(res)

	var curMaterial *wavefrontMaterial = nil
	var matName string = ""

	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "newmtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "newmtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matName = lineTokens[1]
			if _, exists := r.matNameToIndex[matName]; exists {
				return r.emitError(res.Path(), lineNum, `material "%s" already defined`, matName)
			}

			curMaterial = &wavefrontMaterial{Name: matName, Kd: mesh.DefaultAlbedo}
			r.materials = append(r.materials, curMaterial)
			r.matNameToIndex[matName] = len(r.materials) - 1
		default:
			if curMaterial == nil {
				return r.emitError(res.Path(), lineNum, `got "%s" without a "newmtl"`, lineTokens[0])
			}

			switch lineTokens[0] {
			case "include":
				if len(lineTokens) < 2 {
					return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
				}

				baseMaterialIndex, exists := r.matNameToIndex[lineTokens[1]]
				if !exists {
					return r.emitError(res.Path(), lineNum, `could not include unknown material "%s"`, lineTokens[1])
				}

				// Overwrite material but keep the original name
				*curMaterial = *r.materials[baseMaterialIndex]
				curMaterial.Name = matName
			case "Kd":
				curMaterial.Kd, err = parseVec3(lineTokens)
			case "Ke":
				curMaterial.Ke, err = parseVec3(lineTokens)
			case "KeScaler":
				curMaterial.KeScaler, err = parseFloat32(lineTokens)
			default:
				r.logger.Debugf("ignoring unsupported material property %q", lineTokens[0])
			}

			if err != nil {
				return r.emitError(res.Path(), lineNum, err.Error())
			}
		}
	}

	return scanner.Err()
}

// Given an index for a face coord type (vertex, normal) calculate the
// proper offset into the coord list. Wavefront format can also use negative
// indices to reference elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = relOffset + int(index-1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf(`unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
