package imports

import (
	"encoding/csv"
	"encoding/xml"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	sph "github.com/datomi79/Earth-ain-t-Flat-IROS18/photogrammetry"
	"github.com/datomi79/Earth-ain-t-Flat-IROS18/problems"
)

// Intrinsics is a camera calibration exported by Metashape in OpenCV storage format.
type Intrinsics struct {
	Width      int
	Height     int
	K          problems.CameraIntrinsics
	Distortion []float64
}

type matrixXML struct {
	Rows int    `xml:"rows"`
	Cols int    `xml:"cols"`
	Data string `xml:"data"`
}

type intrinsicsXML struct {
	XMLName                 xml.Name  `xml:"opencv_storage"`
	Image_Width             int       `xml:"image_Width"`
	Image_Height            int       `xml:"image_Height"`
	Camera_Matrix           matrixXML `xml:"Camera_Matrix"`
	Distortion_Coefficients matrixXML `xml:"Distortion_Coefficients"`
}

func parseMatrix(name string, m matrixXML) ([]float64, error) {
	fields := strings.Fields(m.Data)
	if len(fields) != m.Rows*m.Cols {
		return nil, errors.Errorf("%s declares %dx%d but holds %d values", name, m.Rows, m.Cols, len(fields))
	}
	data := make([]float64, len(fields))
	for i, f := range fields {
		val, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%s value %d", name, i)
		}
		data[i] = val
	}
	return data, nil
}

// ReadIntrinsicMetashape reads the camera matrix, image size and distortion
// coefficients from an intrinsics XML file.
func ReadIntrinsicMetashape(file string) (_ *Intrinsics, err error) {
	xmlFile, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(xmlFile))

	var intrinsicFile intrinsicsXML
	if err := xml.NewDecoder(xmlFile).Decode(&intrinsicFile); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", file)
	}

	cm := intrinsicFile.Camera_Matrix
	if cm.Rows != 3 || cm.Cols != 3 {
		return nil, errors.Errorf("%s: camera matrix is %dx%d, expected 3x3", file, cm.Rows, cm.Cols)
	}
	cameraData, err := parseMatrix("camera matrix", cm)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	var distortionData []float64
	if intrinsicFile.Distortion_Coefficients.Data != "" {
		distortionData, err = parseMatrix("distortion coefficients", intrinsicFile.Distortion_Coefficients)
		if err != nil {
			return nil, errors.Wrap(err, file)
		}
	}

	return &Intrinsics{
		Width:      intrinsicFile.Image_Width,
		Height:     intrinsicFile.Image_Height,
		K:          problems.CameraIntrinsics(cameraData),
		Distortion: distortionData,
	}, nil
}

// ReadExtrinsicMetashape reads camera poses from a tab separated Metashape export with
// columns Label X Y Z Omega Phi Kappa r11 .. r33. Rotations are flipped about the x
// axis into the computer vision convention and translations are -R C.
func ReadExtrinsicMetashape(file string) (_ map[string]problems.Pose, err error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))

	csvReader := csv.NewReader(f)
	csvReader.Comma = '\t'
	csvReader.Comment = '#'
	csvReader.FieldsPerRecord = -1

	extMap := make(map[string]problems.Pose)
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", file)
		}
		line, _ := csvReader.FieldPos(0)
		if len(record) < 16 {
			return nil, errors.Errorf("%s:%d: expected 16 columns, got %d", file, line, len(record))
		}
		values := make([]float64, 15)
		for i := range values {
			values[i], err = strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d column %d", file, line, i+2)
			}
		}

		rotMat := mat.NewDense(3, 3, values[6:15])
		rotMat.Mul(sph.RotateXAxis(math.Pi), rotMat)

		// t = -R C
		var transMat mat.Dense
		transMat.Mul(rotMat, mat.NewDense(3, 1, values[0:3]))
		transMat.Scale(-1, &transMat)

		var pose problems.Pose
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				pose.Rotation[c*3+r] = rotMat.At(r, c)
			}
			pose.Translation[r] = transMat.At(r, 0)
		}
		extMap[record[0]] = pose
	}
	if len(extMap) == 0 {
		return nil, errors.Errorf("%s holds no cameras", file)
	}
	return extMap, nil
}
